package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeWelcomeEmail       = "email:welcome"
	TypePasswordResetEmail = "email:password_reset"
	TypeTokenCleanup       = "auth:token_cleanup"
)

// WelcomeEmailPayload contains the data for a welcome email task
type WelcomeEmailPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
}

func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWelcomeEmail, data, asynq.MaxRetry(5), asynq.Queue("default")), nil
}

// PasswordResetEmailPayload carries the raw reset token; only its hash is
// stored in the database.
type PasswordResetEmailPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewPasswordResetEmailTask(payload PasswordResetEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePasswordResetEmail, data,
		asynq.MaxRetry(5),
		asynq.Queue("critical"),
		asynq.Timeout(30*time.Second),
	), nil
}

func NewTokenCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeTokenCleanup, nil, asynq.MaxRetry(1), asynq.Queue("low"))
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/metrics"
)

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns account events into background email tasks. It
// implements auth.Notifier. With no Enqueuer every notification is dropped.
type Dispatcher struct {
	client  Enqueuer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(client Enqueuer, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{client: client, logger: logger, metrics: m}
}

func (d *Dispatcher) SendWelcome(ctx context.Context, user *models.User) error {
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return fmt.Errorf("creating welcome task: %w", err)
	}
	return d.enqueue(ctx, task)
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	task, err := NewPasswordResetEmailTask(PasswordResetEmailPayload{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("creating password reset task: %w", err)
	}
	return d.enqueue(ctx, task)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task) error {
	if d.client == nil {
		d.logger.Debug("no queue configured, dropping task", "type", task.Type())
		return nil
	}

	info, err := d.client.EnqueueContext(ctx, task)
	d.metrics.TaskEnqueued(task.Type(), err)
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", task.Type(), err)
	}

	d.logger.Debug("task enqueued", "type", task.Type(), "id", info.ID, "queue", info.Queue)
	return nil
}

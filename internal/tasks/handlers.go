package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
)

// TokenCleaner purges refresh and reset tokens that can no longer be used.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

type Handler struct {
	mailer   Mailer
	cleaner  TokenCleaner
	logger   *slog.Logger
	resetURL string
	now      func() time.Time
}

func NewHandler(mailer Mailer, cleaner TokenCleaner, logger *slog.Logger, resetURL string) *Handler {
	return &Handler{
		mailer:   mailer,
		cleaner:  cleaner,
		logger:   logger,
		resetURL: resetURL,
		now:      time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeWelcomeEmail, h.HandleWelcomeEmail)
	mux.HandleFunc(TypePasswordResetEmail, h.HandlePasswordResetEmail)
	mux.HandleFunc(TypeTokenCleanup, h.HandleTokenCleanup)
}

func (h *Handler) HandleWelcomeEmail(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	msg := Message{
		To:      payload.Email,
		Subject: "Welcome to IssueFlow",
		Body: fmt.Sprintf("Hi %s,\n\nYour IssueFlow account is ready. "+
			"Create an organization to start collecting feedback.\n", displayName(payload.Name)),
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending welcome email: %w", err)
	}

	h.logger.Info("welcome email sent", "user_id", payload.UserID)
	return nil
}

func (h *Handler) HandlePasswordResetEmail(ctx context.Context, t *asynq.Task) error {
	var payload PasswordResetEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	// A retry that lands after expiry would send a dead link
	if !payload.ExpiresAt.IsZero() && h.now().After(payload.ExpiresAt) {
		h.logger.Warn("password reset email skipped, token expired", "user_id", payload.UserID)
		return nil
	}

	link, err := h.resetLink(payload.Token)
	if err != nil {
		return fmt.Errorf("building reset link: %v: %w", err, asynq.SkipRetry)
	}

	msg := Message{
		To:      payload.Email,
		Subject: "Reset your IssueFlow password",
		Body: fmt.Sprintf("Hi %s,\n\nSomeone asked to reset your password. "+
			"Use this link before %s:\n\n%s\n\nIf this wasn't you, ignore this email.\n",
			displayName(payload.Name), payload.ExpiresAt.UTC().Format(time.RFC1123), link),
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending password reset email: %w", err)
	}

	h.logger.Info("password reset email sent", "user_id", payload.UserID)
	return nil
}

func (h *Handler) HandleTokenCleanup(ctx context.Context, _ *asynq.Task) error {
	removed, err := h.cleaner.CleanupExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up tokens: %w", err)
	}
	h.logger.Info("expired tokens removed", "count", removed)
	return nil
}

func (h *Handler) resetLink(token string) (string, error) {
	u, err := url.Parse(h.resetURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

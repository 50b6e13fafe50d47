package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/issueflow/pkg/util"
)

// Registrar is the part of *asynq.Scheduler used to install periodic tasks.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedules installs the periodic maintenance tasks.
func RegisterSchedules(s Registrar, cleanupCron string) error {
	if err := util.ValidateCronExpr(cleanupCron); err != nil {
		return fmt.Errorf("token cleanup schedule: %w", err)
	}
	if _, err := s.Register(cleanupCron, NewTokenCleanupTask()); err != nil {
		return fmt.Errorf("registering token cleanup: %w", err)
	}
	return nil
}

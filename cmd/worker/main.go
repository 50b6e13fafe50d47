package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/database"
	"github.com/hugh/issueflow/internal/tasks"
	"github.com/hugh/issueflow/pkg/config"
	"github.com/hugh/issueflow/pkg/queue"
	"github.com/hugh/issueflow/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting IssueFlow worker", "concurrency", cfg.Worker.Concurrency)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Token cleanup goes through the auth service
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry())
	authService := auth.NewService(db, jwtService, auth.WithLogger(logger))

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	// Create task handler
	handler := tasks.NewHandler(tasks.NewLogMailer(logger), authService, logger, cfg.Worker.ResetURL)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic jobs
	scheduler := queue.NewScheduler(&cfg.Redis)
	if err := tasks.RegisterSchedules(scheduler, cfg.Worker.TokenCleanupCron); err != nil {
		logger.Error("failed to register schedules", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Worker.TokenCleanupCron, time.Now()); err == nil {
		logger.Info("token cleanup scheduled", "cron", cfg.Worker.TokenCleanupCron, "next_run", next)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}

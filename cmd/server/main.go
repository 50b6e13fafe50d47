package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/issueflow/internal/api"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/cache"
	"github.com/hugh/issueflow/internal/database"
	"github.com/hugh/issueflow/internal/integrations"
	"github.com/hugh/issueflow/internal/metrics"
	"github.com/hugh/issueflow/internal/projects"
	"github.com/hugh/issueflow/internal/tasks"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/hugh/issueflow/pkg/config"
	"github.com/hugh/issueflow/pkg/crypto"
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

	logger.Info("starting IssueFlow server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to Redis. The limiters fail open while it is unreachable.
	redisClient := queue.NewRedisClient(&cfg.Redis)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("failed to connect to Redis, rate limiting will fail open", "error", err)
	}
	cancelPing()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Background jobs are enqueued through asynq and run by cmd/worker
	asynqClient := queue.NewClient(&cfg.Redis)
	dispatcher := tasks.NewDispatcher(asynqClient, logger, m)

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry())
	authService := auth.NewService(db, jwtService,
		auth.WithNotifier(dispatcher),
		auth.WithLogger(logger),
		auth.WithRefreshExpiry(cfg.JWT.RefreshExpiry()),
		auth.WithResetExpiry(cfg.JWT.ResetExpiry()),
	)

	// Initialize encryptor for integration secrets
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - integration configs will be unreadable after restart")
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Counters:       cache.NewRedisCounterStore(redisClient),
		Logger:         logger,
		Metrics:        m,
		JWTService:     jwtService,
		AuthService:    authService,
		Tenants:        tenant.NewService(db, logger),
		Quota:          tenant.NewQuotaEnforcer(db),
		Projects:       projects.NewService(db, logger),
		Integrations:   integrations.NewService(db, encryptor, logger),
		Development:    cfg.Server.IsDevelopment(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		APIRateLimit:   cfg.RateLimit.APIRequests,
		APIRateWindow:  cfg.RateLimit.APIWindow(),
		AuthRateLimit:  cfg.RateLimit.AuthRequests,
		AuthRateWindow: cfg.RateLimit.AuthWindow(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	asynqClient.Close()

	// Close Redis connection
	redisClient.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}

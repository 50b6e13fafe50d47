package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
	CORS       CORSConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret              string
	AccessExpiryMinutes int
	RefreshExpiryHours  int
	ResetExpiryMinutes  int
}

type EncryptionConfig struct {
	Key string
}

// RateLimitConfig holds the general API limiter and the stricter limiter used
// on credential endpoints.
type RateLimitConfig struct {
	APIRequests       int
	APIWindowSeconds  int
	AuthRequests      int
	AuthWindowSeconds int
}

type WorkerConfig struct {
	Concurrency      int
	TokenCleanupCron string
	ResetURL         string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type MetricsConfig struct {
	Enabled bool
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessExpiry() time.Duration {
	return time.Duration(j.AccessExpiryMinutes) * time.Minute
}

func (j *JWTConfig) RefreshExpiry() time.Duration {
	return time.Duration(j.RefreshExpiryHours) * time.Hour
}

func (j *JWTConfig) ResetExpiry() time.Duration {
	return time.Duration(j.ResetExpiryMinutes) * time.Minute
}

func (r *RateLimitConfig) APIWindow() time.Duration {
	return time.Duration(r.APIWindowSeconds) * time.Second
}

func (r *RateLimitConfig) AuthWindow() time.Duration {
	return time.Duration(r.AuthWindowSeconds) * time.Second
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "issueflow")
	v.SetDefault("DATABASE_PASSWORD", "issueflow_secret")
	v.SetDefault("DATABASE_NAME", "issueflow")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ACCESS_EXPIRY_MINUTES", 15)
	v.SetDefault("JWT_REFRESH_EXPIRY_HOURS", 168)
	v.SetDefault("PASSWORD_RESET_EXPIRY_MINUTES", 60)
	v.SetDefault("RATE_LIMIT_API_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_API_WINDOW_SECONDS", 900)
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW_SECONDS", 900)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("TOKEN_CLEANUP_CRON", "0 3 * * *")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("METRICS_ENABLED", true)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:              v.GetString("JWT_SECRET"),
			AccessExpiryMinutes: v.GetInt("JWT_ACCESS_EXPIRY_MINUTES"),
			RefreshExpiryHours:  v.GetInt("JWT_REFRESH_EXPIRY_HOURS"),
			ResetExpiryMinutes:  v.GetInt("PASSWORD_RESET_EXPIRY_MINUTES"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			APIRequests:       v.GetInt("RATE_LIMIT_API_REQUESTS"),
			APIWindowSeconds:  v.GetInt("RATE_LIMIT_API_WINDOW_SECONDS"),
			AuthRequests:      v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			AuthWindowSeconds: v.GetInt("RATE_LIMIT_AUTH_WINDOW_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency:      v.GetInt("WORKER_CONCURRENCY"),
			TokenCleanupCron: v.GetString("TOKEN_CLEANUP_CRON"),
			ResetURL:         v.GetString("PASSWORD_RESET_URL"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	if cfg.Server.IsProduction() && cfg.JWT.Secret == "change-me-in-production" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry())
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshExpiry())
	assert.Equal(t, 5, cfg.RateLimit.AuthRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.AuthWindow())
	assert.Equal(t, "0 3 * * *", cfg.Worker.TokenCleanupCron)
	assert.Equal(t, "http://localhost:3000/reset-password", cfg.Worker.ResetURL)
	assert.True(t, cfg.Server.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_API_REQUESTS", "42")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 42, cfg.RateLimit.APIRequests)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("JWT_SECRET", "change-me-in-production")

	_, err := Load()
	assert.Error(t, err)
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}

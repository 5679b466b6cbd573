package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadFromEnv_Defaults tests defaulting with only required vars set
func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "billing_service", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "env", cfg.Secrets.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Webhooks.ReplayTTL)
	assert.Equal(t, "500", cfg.Plans.DailyAmount)
	assert.Equal(t, "1000", cfg.Plans.WeeklyAmount)
	assert.Equal(t, "2100", cfg.Plans.MonthlyAmount)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
}

// TestLoadFromEnv_RequiresDBPassword tests required field validation
func TestLoadFromEnv_RequiresDBPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

// TestLoadFromEnv_VaultBackendNeedsAddress tests backend validation
func TestLoadFromEnv_VaultBackendNeedsAddress(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SECRETS_BACKEND", "vault")
	t.Setenv("VAULT_ADDR", "")

	_, err := LoadFromEnv()
	assert.Error(t, err)

	t.Setenv("VAULT_ADDR", "https://vault.internal:8200")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "vault", cfg.Secrets.Backend)
}

// TestLoadFromEnv_UnknownBackendRejected tests backend validation
func TestLoadFromEnv_UnknownBackendRejected(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SECRETS_BACKEND", "gcp")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

// TestLoadFromEnv_Overrides tests typed env parsing
func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("REPLAY_GUARD_TTL", "90s")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "15m")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Webhooks.ReplayTTL)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 12.5, cfg.Server.RateLimitRPS)
	assert.True(t, cfg.Logger.Development)
}

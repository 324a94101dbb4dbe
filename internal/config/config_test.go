package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "ticketing")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_KEY_SECRET", "rzp_secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
	assert.Equal(t, cfg.HoldTTL, cfg.StaleAfter)
	assert.True(t, cfg.Pricing.PlatformFee.Equal(decimal.RequireFromString("18")))
	assert.True(t, cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.18")))
	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.False(t, cfg.Payment.TestMode)
	assert.Equal(t, "mysql", cfg.SequenceBackend)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HOLD_TTL", "10m")
	t.Setenv("PRICING_HOLIDAYS", "2025-01-26, 2025-08-15")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter)
	assert.Equal(t, []string{"2025-01-26", "2025-08-15"}, cfg.Pricing.Holidays)
	assert.Equal(t, "cache:6380", cfg.AsynqRedisAddr)
}

func TestValidateRefusesTestModeInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PAYMENT_TEST_MODE", "true")
	cfg := Load()
	assert.Error(t, cfg.Validate())

	cfg.Payment.TestMode = false
	assert.NoError(t, cfg.Validate())

	cfg.SequenceBackend = "memory"
	assert.Error(t, cfg.Validate())
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cc := LoadCacheConfig()
	assert.True(t, cc.Methods["GET"])
	assert.True(t, cc.Methods["HEAD"])
	assert.False(t, cc.Methods["POST"])
	assert.Equal(t, "route", cc.KeyStrategy)
	assert.Equal(t, 10*time.Minute, cc.TTL)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}, cfg.Coins)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 5.0, cfg.Thresholds.USDTDominanceRisk)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DB", "pulse")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("COINS", "BTCUSDT, ETHUSDT ,")
	t.Setenv("RETRY_INITIAL_DELAY", "0.5")
	t.Setenv("DEFAULT_TIMEOUT", "2.5")
	t.Setenv("USDT_DOMINANCE_RISK_THRESHOLD", "8.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "pulse", cfg.Mongo.Database)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Coins)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 2500*time.Millisecond, cfg.DefaultTimeout)
	assert.Equal(t, 8.0, cfg.Thresholds.USDTDominanceRisk)
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")

	_, err := Load()
	require.Error(t, err)
	var ce *errs.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ENVIRONMENT", ce.Key)
}

func TestLoadRejectsAPIKeyEnabledWithoutKey(t *testing.T) {
	t.Setenv("API_KEY_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	var ce *errs.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "API_KEY", ce.Key)
}

func TestIngestTimeframesSkipsOneMinute(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	tfs := cfg.IngestTimeframes()
	assert.NotContains(t, tfs, "1m")
	assert.Contains(t, tfs, "4h")
	assert.Contains(t, tfs, "1w")
}

func TestSecretProviderSelection(t *testing.T) {
	p, err := NewSecretProvider("env")
	require.NoError(t, err)
	t.Setenv("CMC_API_KEY", "k-123")
	assert.Equal(t, "k-123", p.Resolve("CMC_API_KEY", "fallback"))
	assert.Equal(t, "fallback", p.Resolve("MISSING_SECRET", "fallback"))

	_, err = NewSecretProvider("aws")
	require.Error(t, err)

	_, err = NewSecretProvider("bogus")
	require.Error(t, err)
}

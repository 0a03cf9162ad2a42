package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRequiresInstrumentsWithoutDiscovery(t *testing.T) {
	cfg := Defaults()
	cfg.Discovery.Enabled = false
	cfg.Feed.Instruments = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instruments")
}

func TestValidateServeModeAllowsEmptyInstruments(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	cfg.Feed.Instruments = nil
	require.NoError(t, cfg.Validate())
}

func TestValidateServeModeRequiresServer(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	cfg.Server.Enabled = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve mode")
}

func TestNeedsPostgres(t *testing.T) {
	cfg := Defaults()

	cfg.Mode = "full"
	assert.True(t, cfg.NeedsPostgres())
	cfg.Mode = "serve"
	assert.True(t, cfg.NeedsPostgres())
	cfg.Mode = "monitor"
	assert.False(t, cfg.NeedsPostgres())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"
log_level = "debug"

[metrics]
band_threshold = 0.0005

[discovery]
enabled = true
interval = "10m"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.0005, cfg.Metrics.BandThreshold)
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Discovery.Interval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "wss://ws-feed.exchange.coinbase.com", cfg.Exchange.WSURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOOKWATCH_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("BOOKWATCH_METRICS_BAND_THRESHOLD", "0.001")
	t.Setenv("BOOKWATCH_FEED_INSTRUMENTS", "BTC-USD, SOL-USD")
	t.Setenv("BOOKWATCH_DISCOVERY_INTERVAL", "1m")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 0.001, cfg.Metrics.BandThreshold)
	assert.Equal(t, []string{"BTC-USD", "SOL-USD"}, cfg.Feed.Instruments)
	assert.Equal(t, time.Minute, cfg.Discovery.Interval.Duration)
}

func TestEnvOverridesIgnoreEmptyAndMalformed(t *testing.T) {
	t.Setenv("BOOKWATCH_REDIS_ADDR", "")
	t.Setenv("BOOKWATCH_METRICS_BAND_THRESHOLD", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0.00001, cfg.Metrics.BandThreshold)
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "optsignal-test", cfg.App.Name)
	assert.Equal(t, ":19090", cfg.App.MetricsAddr)
	assert.Equal(t, 10000.0, cfg.Risk.AccountBalance)
	assert.Equal(t, 3, cfg.Risk.MaxConcurrentTrades)
	// unset in the file, kept from defaults
	assert.Equal(t, 900, cfg.Risk.ReservationTTLSec)
	assert.Equal(t, []string{"scalping", "momentum"}, cfg.Engine.Strategies)
	assert.Equal(t, 2*time.Second, cfg.ScanInterval())

	ec := cfg.EngineConfig()
	assert.Equal(t, 4, ec.Workers)
	assert.Equal(t, 0.8, ec.MinConfidence)
	assert.Equal(t, 30*time.Second, ec.StaleAfter)

	lim := cfg.RiskLimits()
	assert.Equal(t, 0.02, lim.RiskPerTrade)
	assert.Equal(t, 15*time.Minute, lim.ReservationTTL)
	assert.Equal(t, 0.20, lim.TrailingStopPct)
	assert.Equal(t, 0.10, lim.BreakevenPct)
	assert.Equal(t, "10000", cfg.Balance().String())
}

func TestLoadMissingBalance(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "no_balance.yaml"))
	assert.True(t, errors.Is(err, ErrMissingBalance))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPTSIGNAL_ACCOUNT_BALANCE", "25000")
	t.Setenv("OPTSIGNAL_MAX_CONCURRENT_TRADES", "5")
	t.Setenv("OPTSIGNAL_STRATEGIES", "zero_dte, premium_selling")
	t.Setenv("OPTSIGNAL_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 25000.0, cfg.Risk.AccountBalance)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentTrades)
	assert.Equal(t, []string{"zero_dte", "premium_selling"}, cfg.Engine.Strategies)
	assert.Equal(t, "warn", cfg.App.LogLevel)
}

func TestEnvOverrideParseError(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "OPTSIGNAL_WORKERS" {
			return "many", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "OPTSIGNAL_WORKERS")
}

func TestBalanceOnlyFromEnv(t *testing.T) {
	t.Setenv("OPTSIGNAL_ACCOUNT_BALANCE", "5000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.Risk.AccountBalance)
	assert.Equal(t, 0.75, cfg.Engine.MinConfidenceThreshold)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		mut  func(*Config)
	}{
		{"risk per trade", func(c *Config) { c.Risk.RiskPerTrade = 0 }},
		{"position pct", func(c *Config) { c.Risk.MaxPositionSizePct = 2 }},
		{"daily loss", func(c *Config) { c.Risk.MaxDailyLossPct = -1 }},
		{"concurrency", func(c *Config) { c.Risk.MaxConcurrentTrades = 0 }},
		{"trailing stop", func(c *Config) { c.Risk.TrailingStopPct = 1 }},
		{"breakeven", func(c *Config) { c.Risk.BreakevenPct = -0.1 }},
		{"confidence", func(c *Config) { c.Engine.MinConfidenceThreshold = 0.99 }},
		{"workers", func(c *Config) { c.Engine.Workers = 0 }},
		{"timezone", func(c *Config) { c.Session.Timezone = "Mars/Olympus" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Risk.AccountBalance = 10000
			tc.mut(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPTSIGNAL_TEST_MARKER=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OPTSIGNAL_TEST_MARKER") })
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("OPTSIGNAL_TEST_MARKER"))
}

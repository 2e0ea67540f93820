// Package config loads the engine's settings from YAML, a .env file and OPTSIGNAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/chidi150c/optsignal/internal/engine"
	"github.com/chidi150c/optsignal/internal/risk"
)

// ErrMissingBalance is returned when no positive account balance is configured.
var ErrMissingBalance = errors.New("account_balance is required")

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	StreamAddr  string `yaml:"stream_addr"`
	LockPath    string `yaml:"lock_path"`
}

// Risk holds the account and the guard-rails applied to every admitted signal.
type Risk struct {
	AccountBalance      float64 `yaml:"account_balance"`
	RiskPerTrade        float64 `yaml:"risk_per_trade"`
	MaxPositionSizePct  float64 `yaml:"max_position_size_pct"`
	MaxDailyLossPct     float64 `yaml:"max_daily_loss_pct"`
	MaxConcurrentTrades int     `yaml:"max_concurrent_trades"`
	ReservationTTLSec   int     `yaml:"reservation_ttl_sec"`
	TrailingStopPct     float64 `yaml:"trailing_stop_pct"`
	BreakevenPct        float64 `yaml:"breakeven_pct"`
}

type Engine struct {
	Workers                int      `yaml:"workers"`
	RiskFreeRate           float64  `yaml:"risk_free_rate"`
	MinConfidenceThreshold float64  `yaml:"min_confidence_threshold"`
	StaleAfterSec          int      `yaml:"stale_after_sec"`
	MaxSignals             int      `yaml:"max_signals"`
	ScanIntervalMs         int      `yaml:"scan_interval_ms"`
	Strategies             []string `yaml:"strategies"`
}

// Session controls the trading-day boundary and the snapshot file.
type Session struct {
	Timezone     string `yaml:"timezone"`
	SnapshotPath string `yaml:"snapshot_path"`
}

type Config struct {
	App     App     `yaml:"app"`
	Risk    Risk    `yaml:"risk"`
	Engine  Engine  `yaml:"engine"`
	Session Session `yaml:"session"`
}

func Default() Config {
	return Config{
		App: App{Name: "optsignal", Env: "dev", LogLevel: "info", MetricsAddr: ":9090", StreamAddr: ":8081", LockPath: "optsignal.lock"},
		Risk: Risk{
			RiskPerTrade:        0.02,
			MaxPositionSizePct:  0.05,
			MaxDailyLossPct:     0.03,
			MaxConcurrentTrades: 3,
			ReservationTTLSec:   900,
			TrailingStopPct:     0.15,
			BreakevenPct:        0.10,
		},
		Engine: Engine{
			Workers:                8,
			RiskFreeRate:           0.05,
			MinConfidenceThreshold: 0.75,
			StaleAfterSec:          45,
			MaxSignals:             10,
			ScanIntervalMs:         1000,
		},
		Session: Session{Timezone: "America/New_York", SnapshotPath: "session.json"},
	}
}

// LoadEnv loads a .env file without overwriting variables already set. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load starts from Default, applies the YAML file at path (if any) and then
// OPTSIGNAL_* overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Risk.AccountBalance <= 0 {
		return ErrMissingBalance
	}
	switch {
	case c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1:
		return fmt.Errorf("risk_per_trade %.4f out of (0, 1]", c.Risk.RiskPerTrade)
	case c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 1:
		return fmt.Errorf("max_position_size_pct %.4f out of (0, 1]", c.Risk.MaxPositionSizePct)
	case c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1:
		return fmt.Errorf("max_daily_loss_pct %.4f out of (0, 1]", c.Risk.MaxDailyLossPct)
	case c.Risk.MaxConcurrentTrades < 1:
		return fmt.Errorf("max_concurrent_trades must be at least 1")
	case c.Risk.TrailingStopPct < 0 || c.Risk.TrailingStopPct >= 1:
		return fmt.Errorf("trailing_stop_pct %.4f out of [0, 1)", c.Risk.TrailingStopPct)
	case c.Risk.BreakevenPct < 0:
		return fmt.Errorf("breakeven_pct must not be negative")
	case c.Engine.MinConfidenceThreshold < 0 || c.Engine.MinConfidenceThreshold > 0.95:
		return fmt.Errorf("min_confidence_threshold %.2f out of [0, 0.95]", c.Engine.MinConfidenceThreshold)
	case c.Engine.Workers < 1:
		return fmt.Errorf("workers must be at least 1")
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

func (c *Config) Balance() decimal.Decimal { return decimal.NewFromFloat(c.Risk.AccountBalance) }

func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		RiskPerTrade:    c.Risk.RiskPerTrade,
		MaxPositionPct:  c.Risk.MaxPositionSizePct,
		MaxDailyLossPct: c.Risk.MaxDailyLossPct,
		MaxConcurrent:   c.Risk.MaxConcurrentTrades,
		ReservationTTL:  time.Duration(c.Risk.ReservationTTLSec) * time.Second,
		TrailingStopPct: c.Risk.TrailingStopPct,
		BreakevenPct:    c.Risk.BreakevenPct,
	}
}

func (c *Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	ec.Workers = c.Engine.Workers
	ec.RiskFreeRate = c.Engine.RiskFreeRate
	ec.MinConfidence = c.Engine.MinConfidenceThreshold
	ec.StaleAfter = time.Duration(c.Engine.StaleAfterSec) * time.Second
	ec.MaxSignals = c.Engine.MaxSignals
	ec.Strategies = c.Engine.Strategies
	return ec
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Engine.ScanIntervalMs) * time.Millisecond
}

// applyEnv overrides fields from OPTSIGNAL_* variables found by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	floats := map[string]*float64{
		"ACCOUNT_BALANCE":          &c.Risk.AccountBalance,
		"RISK_PER_TRADE":           &c.Risk.RiskPerTrade,
		"MAX_POSITION_SIZE_PCT":    &c.Risk.MaxPositionSizePct,
		"MAX_DAILY_LOSS_PCT":       &c.Risk.MaxDailyLossPct,
		"MIN_CONFIDENCE_THRESHOLD": &c.Engine.MinConfidenceThreshold,
		"RISK_FREE_RATE":           &c.Engine.RiskFreeRate,
		"TRAILING_STOP_PCT":        &c.Risk.TrailingStopPct,
		"BREAKEVEN_PCT":            &c.Risk.BreakevenPct,
	}
	ints := map[string]*int{
		"MAX_CONCURRENT_TRADES": &c.Risk.MaxConcurrentTrades,
		"RESERVATION_TTL_SEC":   &c.Risk.ReservationTTLSec,
		"WORKERS":               &c.Engine.Workers,
		"STALE_AFTER_SEC":       &c.Engine.StaleAfterSec,
		"MAX_SIGNALS":           &c.Engine.MaxSignals,
		"SCAN_INTERVAL_MS":      &c.Engine.ScanIntervalMs,
	}
	strs := map[string]*string{
		"LOG_LEVEL":     &c.App.LogLevel,
		"METRICS_ADDR":  &c.App.MetricsAddr,
		"STREAM_ADDR":   &c.App.StreamAddr,
		"LOCK_PATH":     &c.App.LockPath,
		"TIMEZONE":      &c.Session.Timezone,
		"SNAPSHOT_PATH": &c.Session.SnapshotPath,
	}

	for k, dst := range floats {
		if v, ok := lookup("OPTSIGNAL_" + k); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("OPTSIGNAL_%s: %w", k, err)
			}
			*dst = f
		}
	}
	for k, dst := range ints {
		if v, ok := lookup("OPTSIGNAL_" + k); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("OPTSIGNAL_%s: %w", k, err)
			}
			*dst = n
		}
	}
	for k, dst := range strs {
		if v, ok := lookup("OPTSIGNAL_" + k); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("OPTSIGNAL_STRATEGIES"); ok && v != "" {
		c.Engine.Strategies = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Engine.Strategies = append(c.Engine.Strategies, s)
			}
		}
	}
	return nil
}

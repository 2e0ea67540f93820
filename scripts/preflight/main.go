package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/chidi150c/optsignal/internal/config"
)

func fail(msg string) { log.Fatalf("FAIL: %s", msg) }
func pass(msg string) { fmt.Println("PASS:", msg) }

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	// Load .env (do not overwrite existing env)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fail("cannot load .env")
		}
		pass(".env loaded")
	} else {
		fmt.Println("NOTE: no .env, using config file and process environment only")
	}

	cfg, err := config.Load(*cfgPath)
	if errors.Is(err, config.ErrMissingBalance) {
		fail("OPTSIGNAL_ACCOUNT_BALANCE missing (or risk.account_balance in config)")
	}
	if err != nil {
		fail(err.Error())
	}
	pass(fmt.Sprintf("config valid (balance %.2f)", cfg.Risk.AccountBalance))

	// Risk knobs sane
	lim := cfg.RiskLimits()
	if lim.RiskPerTrade > 0.05 {
		fmt.Printf("NOTE: risk_per_trade %.3f is above 5%%\n", lim.RiskPerTrade)
	}
	if lim.MaxDailyLossPct > 0.10 {
		fmt.Printf("NOTE: max_daily_loss_pct %.3f is above 10%%\n", lim.MaxDailyLossPct)
	}
	pass(fmt.Sprintf("risk knobs: %.0f%% per trade, %.0f%% daily stop, %d concurrent", lim.RiskPerTrade*100, lim.MaxDailyLossPct*100, lim.MaxConcurrent))

	if cfg.App.MetricsAddr == cfg.App.StreamAddr {
		fail("metrics_addr and stream_addr must differ")
	}
	pass("listen addresses distinct")

	// Lock must be free
	if _, err := os.Stat(cfg.App.LockPath); err == nil {
		fail("lock file " + cfg.App.LockPath + " exists: another bot running or stale lock")
	}
	pass("no instance lock held")

	pass("Preflight completed")
}

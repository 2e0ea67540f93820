package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// SessionSnapshot is the durable part of one trading session's risk state.
type SessionSnapshot struct {
	// Trading day anchor
	DayOpenISO string `json:"day_open_iso"`
	Timezone   string `json:"timezone"`

	// Balance at session start (basis for the daily loss limit)
	BalanceAtOpen decimal.Decimal `json:"balance_at_open"`

	DailyPnL       decimal.Decimal `json:"daily_pnl"`
	OpenPositions  int             `json:"open_positions"`
	BreakerTripped bool            `json:"breaker_tripped"`
	SavedAt        time.Time       `json:"saved_at"`

	// Tracked positions, encoded by their owner.
	Positions json.RawMessage `json:"positions,omitempty"`
}

func LoadSnapshot(path string) (SessionSnapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SessionSnapshot{}, err
	}
	var s SessionSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return SessionSnapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return s, nil
}

func SaveSnapshot(path string, s SessionSnapshot) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	// best-effort .bak
	_ = os.WriteFile(path+".bak", b, 0o600)
	return writeFileAtomic(path, b, 0o600)
}

// SeedForToday builds an empty snapshot for the trading day containing now.
func SeedForToday(tz string, now time.Time, balance decimal.Decimal) SessionSnapshot {
	return SessionSnapshot{
		DayOpenISO:    TodayOpen(tz, now).UTC().Format(time.RFC3339),
		Timezone:      tz,
		BalanceAtOpen: balance,
		SavedAt:       now.UTC(),
	}
}

func ParseDayOpenISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty day_open_iso")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Package market models the option and price snapshots handed to the engine each scan.
package market

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chidi150c/optsignal/internal/greeks"
)

var (
	ErrInvalidInput = errors.New("invalid contract")
	ErrStaleData    = errors.New("stale snapshot")
)

// Side of a block trade print.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// BlockTrade is a single large print on the contract reported by the feed.
type BlockTrade struct {
	Size  int64     `json:"size"`
	Price float64   `json:"price"`
	Side  Side      `json:"side"`
	Time  time.Time `json:"time"`
}

// OptionContract is one row of an option chain snapshot.
type OptionContract struct {
	Symbol          string            `json:"symbol"`
	Underlying      string            `json:"underlying"`
	Strike          float64           `json:"strike"`
	Expiration      time.Time         `json:"expiration"`
	Type            greeks.OptionType `json:"type"`
	Bid             float64           `json:"bid"`
	Ask             float64           `json:"ask"`
	Last            float64           `json:"last"`
	Mark            float64           `json:"mark"`
	Volume          int64             `json:"volume"`
	OpenInterest    int64             `json:"open_interest"`
	AvgVolume30d    float64           `json:"avg_volume_30d"`
	Greeks          *greeks.Greeks    `json:"greeks,omitempty"`
	ImpliedVol      float64           `json:"implied_vol"`
	IVRank          float64           `json:"iv_rank"`
	IVPercentile    float64           `json:"iv_percentile"`
	IVHistory       []float64         `json:"iv_history,omitempty"`
	UnderlyingPrice float64           `json:"underlying_price"`
	Timestamp       time.Time         `json:"timestamp"`
	BlockTrades     []BlockTrade      `json:"block_trades,omitempty"`
}

// Validate checks the structural invariants of a snapshot row.
func (c OptionContract) Validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidInput)
	case c.Type != greeks.Call && c.Type != greeks.Put:
		return fmt.Errorf("%w: %s unknown type %q", ErrInvalidInput, c.Symbol, c.Type)
	case c.Bid < 0 || c.Ask < 0:
		return fmt.Errorf("%w: %s negative quote", ErrInvalidInput, c.Symbol)
	case c.Bid > c.Ask:
		return fmt.Errorf("%w: %s bid %.2f above ask %.2f", ErrInvalidInput, c.Symbol, c.Bid, c.Ask)
	case c.Volume < 0:
		return fmt.Errorf("%w: %s negative volume", ErrInvalidInput, c.Symbol)
	case c.Strike <= 0:
		return fmt.Errorf("%w: %s non-positive strike", ErrInvalidInput, c.Symbol)
	case c.UnderlyingPrice <= 0:
		return fmt.Errorf("%w: %s non-positive underlying price", ErrInvalidInput, c.Symbol)
	case c.Expiration.IsZero():
		return fmt.Errorf("%w: %s missing expiration", ErrInvalidInput, c.Symbol)
	}
	if c.Greeks != nil && math.Abs(c.Greeks.Delta) > 1 {
		return fmt.Errorf("%w: %s delta %.3f out of range", ErrInvalidInput, c.Symbol, c.Greeks.Delta)
	}
	return nil
}

// CheckFresh returns ErrStaleData when the snapshot is older than tolerance at now.
func (c OptionContract) CheckFresh(now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 || c.Timestamp.IsZero() {
		return nil
	}
	if age := now.Sub(c.Timestamp); age > tolerance {
		return fmt.Errorf("%w: %s is %s old", ErrStaleData, c.Symbol, age.Round(time.Second))
	}
	return nil
}

// Mid is the bid/ask midpoint, falling back to mark then last.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	if c.Mark > 0 {
		return c.Mark
	}
	return c.Last
}

func (c OptionContract) Spread() float64 { return c.Ask - c.Bid }

// SpreadPct is the spread as a percent of mid; 100 when mid is unknown.
func (c OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return 100
	}
	return c.Spread() / mid * 100
}

// VolumeRatio compares today's volume with the 30-day average; 1 without history.
func (c OptionContract) VolumeRatio() float64 {
	if c.AvgVolume30d <= 0 {
		return 1
	}
	return float64(c.Volume) / c.AvgVolume30d
}

// Delta returns the supplied or computed delta, 0 when neither exists.
func (c OptionContract) Delta() float64 {
	if c.Greeks == nil {
		return 0
	}
	return c.Greeks.Delta
}

// DTE counts calendar days from now to the expiration date in market time.
func (c OptionContract) DTE(now time.Time) int {
	y, m, d := now.In(Location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := c.Expiration.In(Location()).Date()
	exp := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	days := int(exp.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ExpiresAt is the 16:00 ET close on the expiration date.
func (c OptionContract) ExpiresAt() time.Time {
	y, m, d := c.Expiration.In(Location()).Date()
	return time.Date(y, m, d, 16, 0, 0, 0, Location())
}

// YearsToExpiry is the Black-Scholes T measured to the expiration close.
func (c OptionContract) YearsToExpiry(now time.Time) float64 {
	return c.ExpiresAt().Sub(now).Hours() / (24 * 365)
}

func (c OptionContract) IsZeroDTE(now time.Time) bool { return c.DTE(now) == 0 }

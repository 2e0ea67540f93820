// Package signal defines the candidate trade signals and per-candidate decisions the engine emits.
package signal

import (
	"math"
	"strings"
	"time"

	"github.com/chidi150c/optsignal/internal/greeks"
)

// MaxConfidence caps every confidence value.
const MaxConfidence = 0.95

type Strategy string

const (
	Scalping       Strategy = "scalping"
	Momentum       Strategy = "momentum"
	VolumeSpike    Strategy = "volume_spike"
	PremiumSelling Strategy = "premium_selling"
	ZeroDTE        Strategy = "zero_dte"
)

// Priority orders strategies for tie-breaks; lower wins.
func (s Strategy) Priority() int {
	switch s {
	case VolumeSpike:
		return 0
	case Scalping:
		return 1
	case PremiumSelling:
		return 2
	case ZeroDTE:
		return 3
	case Momentum:
		return 4
	}
	return 5
}

// LongPremium reports whether the strategy pays premium for a single option.
func (s Strategy) LongPremium() bool {
	return s == Scalping || s == Momentum || s == VolumeSpike
}

type Action string

const (
	BuyCall           Action = "buy_call"
	BuyPut            Action = "buy_put"
	FollowFlow        Action = "follow_flow"
	SellPut           Action = "sell_put"
	SellSpread        Action = "sell_spread"
	SellIronCondor    Action = "sell_iron_condor"
	SellStrangle      Action = "sell_strangle"
	SellIronButterfly Action = "sell_iron_butterfly"
)

// Credit reports whether the action collects premium; its prices are buy-back prices.
func (a Action) Credit() bool {
	switch a {
	case SellPut, SellSpread, SellIronCondor, SellStrangle, SellIronButterfly:
		return true
	}
	return false
}

type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Sign is +1 for bullish, -1 for bearish, 0 for neutral.
func (d Direction) Sign() int {
	switch d {
	case Bullish:
		return 1
	case Bearish:
		return -1
	}
	return 0
}

// Leg is one option of a multi-leg position. Quantity is negative for sold legs.
type Leg struct {
	Symbol   string            `json:"symbol"`
	Type     greeks.OptionType `json:"type"`
	Strike   float64           `json:"strike"`
	Quantity int               `json:"quantity"`
	Price    float64           `json:"price"`
}

type Signal struct {
	ID             string    `json:"id"`
	Strategy       Strategy  `json:"strategy"`
	Action         Action    `json:"action"`
	Direction      Direction `json:"direction"`
	Contract       string    `json:"contract"`
	Underlying     string    `json:"underlying"`
	Legs           []Leg     `json:"legs,omitempty"`
	Entry          float64   `json:"entry"`
	Target         float64   `json:"target"`
	Stop           float64   `json:"stop"`
	Confidence     float64   `json:"confidence"`
	BaseConfidence float64   `json:"base_confidence"`
	Reasoning      []string  `json:"reasoning"`
	RiskReward     float64   `json:"risk_reward"`
	BreakoutLevel  float64   `json:"breakout_level,omitempty"`
	Advisory       bool      `json:"advisory"`
	Contracts      int       `json:"contracts"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Note appends a line to the reasoning trail.
func (s *Signal) Note(msg string) { s.Reasoning = append(s.Reasoning, msg) }

func (s Signal) Explain() string { return strings.Join(s.Reasoning, "; ") }

// Key identifies a signal for de-duplication within a scan.
func (s Signal) Key() string { return s.Contract + "|" + string(s.Strategy) }

// RiskRewardOf is |target-entry| / |entry-stop|, 0 when the stop equals entry.
func RiskRewardOf(entry, target, stop float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// Oriented checks that target and stop sit on the correct sides of entry for the action.
func (s Signal) Oriented() bool {
	if s.Advisory {
		return s.Target == 0 && s.Stop == 0
	}
	if s.Action.Credit() {
		return s.Target < s.Entry && s.Entry < s.Stop
	}
	return s.Target > s.Entry && s.Entry > s.Stop
}

// Clamp bounds a confidence to [0, MaxConfidence].
func Clamp(c float64) float64 {
	return math.Max(0, math.Min(MaxConfidence, c))
}

// Package quality scales a detector's base confidence by market conditions.
// Stages run in a fixed order and clamp after each multiplication.
package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

// DefaultMinConfidence is the post-filter admission threshold.
const DefaultMinConfidence = 0.75

// Credit R/R tiers: a credit of a third of the width pays 0.5.
const (
	CreditRRPoor = 0.20
	CreditRRGood = 0.50
)

type Stage string

const (
	StageTimeOfDay  Stage = "time_of_day"
	StageVolume     Stage = "volume"
	StageSpread     Stage = "spread"
	StageDelta      Stage = "delta"
	StageIVRank     Stage = "iv_rank"
	StageDTE        Stage = "dte"
	StageRiskReward Stage = "risk_reward"
)

// Adjustment is one audit record of a stage that changed the confidence.
type Adjustment struct {
	Stage  Stage   `json:"stage"`
	Bonus  float64 `json:"bonus"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Note   string  `json:"note"`
}

type Result struct {
	Confidence  float64      `json:"confidence"`
	Passed      bool         `json:"passed"`
	Adjustments []Adjustment `json:"adjustments"`
}

var sessionBonus = map[market.Session]float64{
	market.OpeningRush: 0.50,
	market.MiddayChop:  -0.20,
	market.PowerHour:   0,
	market.CloseGamma:  -0.50,
	market.Closed:      -0.70,
}

// Filter is immutable after construction.
type Filter struct {
	MinConfidence float64
	DeltaBand     [2]float64
}

func New(minConfidence float64) Filter {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return Filter{MinConfidence: minConfidence, DeltaBand: [2]float64{0.40, 0.70}}
}

type stageFunc func(s signal.Signal, c market.OptionContract, now time.Time) (float64, string, bool)

// Apply runs every stage over s and reports the final confidence.
func (f Filter) Apply(s signal.Signal, c market.OptionContract, now time.Time) Result {
	stages := []struct {
		name Stage
		fn   stageFunc
	}{
		{StageTimeOfDay, timeOfDay},
		{StageVolume, volume},
		{StageSpread, spread},
		{StageDelta, f.delta},
		{StageIVRank, ivRank},
		{StageDTE, dte},
		{StageRiskReward, riskReward},
	}
	conf := signal.Clamp(s.Confidence)
	res := Result{}
	for _, st := range stages {
		bonus, note, ok := st.fn(s, c, now)
		if !ok {
			continue
		}
		next := signal.Clamp(conf * (1 + bonus))
		res.Adjustments = append(res.Adjustments, Adjustment{Stage: st.name, Bonus: bonus, Before: conf, After: next, Note: note})
		conf = next
	}
	res.Confidence = conf
	res.Passed = conf >= f.MinConfidence
	return res
}

func timeOfDay(_ signal.Signal, _ market.OptionContract, now time.Time) (float64, string, bool) {
	sess := market.SessionAt(now)
	return sessionBonus[sess], string(sess), true
}

func volume(_ signal.Signal, c market.OptionContract, _ time.Time) (float64, string, bool) {
	r := c.VolumeRatio()
	note := fmt.Sprintf("%.1fx avg volume", r)
	switch {
	case r >= 10:
		return 0.30, note, true
	case r >= 5:
		return 0.20, note, true
	case r >= 3:
		return 0.10, note, true
	}
	return -0.30, note, true
}

func spread(_ signal.Signal, c market.OptionContract, _ time.Time) (float64, string, bool) {
	pct := c.SpreadPct()
	note := fmt.Sprintf("spread %.1f%% of mid", pct)
	switch {
	case pct < 2:
		return 0.10, note, true
	case pct > 5:
		return -0.20, note, true
	}
	return 0, "", false
}

// delta only grades contracts bought outright.
func (f Filter) delta(s signal.Signal, c market.OptionContract, _ time.Time) (float64, string, bool) {
	if !s.Strategy.LongPremium() || c.Greeks == nil {
		return 0, "", false
	}
	d := math.Abs(c.Greeks.Delta)
	note := fmt.Sprintf("delta %.2f", d)
	if d >= f.DeltaBand[0] && d <= f.DeltaBand[1] {
		return 0.10, note, true
	}
	return -0.20, note, true
}

func ivRank(s signal.Signal, c market.OptionContract, _ time.Time) (float64, string, bool) {
	if c.ImpliedVol <= 0 {
		return 0, "", false
	}
	note := fmt.Sprintf("IV rank %.0f", c.IVRank)
	switch {
	case c.IVRank > 70 && s.Strategy == signal.VolumeSpike:
		return 0.10, note, true
	case c.IVRank < 30 && s.Strategy == signal.Scalping:
		return -0.10, note, true
	}
	return 0, "", false
}

func dte(_ signal.Signal, c market.OptionContract, now time.Time) (float64, string, bool) {
	d := c.DTE(now)
	switch {
	case d == 0 && market.SessionAt(now) == market.OpeningRush:
		return 0.20, "0DTE in prime window", true
	case d == 0:
		return -0.40, "0DTE outside prime window", true
	case d <= 7:
		return 0.10, fmt.Sprintf("%d DTE", d), true
	}
	return 0, "", false
}

// riskReward grades long premium on reward over risk. Credit structures are
// graded on max profit over max loss, which sits well below 1 for any
// defined-risk sale, so they use their own tiers.
func riskReward(s signal.Signal, _ market.OptionContract, _ time.Time) (float64, string, bool) {
	if s.Advisory {
		return 0, "", false
	}
	note := fmt.Sprintf("R/R %.2f", s.RiskReward)
	if s.Action.Credit() {
		note = fmt.Sprintf("credit R/R %.2f", s.RiskReward)
		switch {
		case s.RiskReward < CreditRRPoor:
			return -0.30, note, true
		case s.RiskReward >= CreditRRGood:
			return 0.20, note, true
		}
		return 0, "", false
	}
	switch {
	case s.RiskReward < 1.5:
		return -0.30, note, true
	case s.RiskReward >= 2.5:
		return 0.20, note, true
	}
	return 0, "", false
}

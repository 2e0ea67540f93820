package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/indicators"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

type ScalpingParams struct {
	MaxSpread      float64
	MinVolume      int64
	MinDelta       float64
	MaxDelta       float64
	MinMomentum    float64 // 1-minute move, fraction
	LongRSI        [2]float64
	ShortRSI       [2]float64
	TargetPct      float64
	StopPct        float64
	BaseConfidence float64
	Horizon        time.Duration
}

func DefaultScalping() ScalpingParams {
	return ScalpingParams{
		MaxSpread:      0.10,
		MinVolume:      1000,
		MinDelta:       0.40,
		MaxDelta:       0.70,
		MinMomentum:    0.03,
		LongRSI:        [2]float64{30, 40},
		ShortRSI:       [2]float64{60, 70},
		TargetPct:      0.15,
		StopPct:        0.05,
		BaseConfidence: 0.85,
		Horizon:        5 * time.Minute,
	}
}

// Scalper trades fast one-minute moves in liquid near-the-money contracts.
type Scalper struct{ P ScalpingParams }

func (Scalper) Strategy() signal.Strategy { return signal.Scalping }

func (d Scalper) Detect(in Input) (signal.Signal, bool) {
	c := in.Contract
	if c.Spread() > d.P.MaxSpread+1e-9 || c.Volume < d.P.MinVolume {
		return signal.Signal{}, false
	}
	if !between(absDelta(c), d.P.MinDelta, d.P.MaxDelta) {
		return signal.Signal{}, false
	}
	f, ok := in.frame(market.OneMinute)
	if !ok || !f.Has(indicators.KindMomentum) || !f.Has(indicators.KindRSI) {
		return signal.Signal{}, false
	}
	if math.Abs(f.Momentum) < d.P.MinMomentum {
		return signal.Signal{}, false
	}

	var action signal.Action
	var dir signal.Direction
	switch {
	case f.Momentum > 0 && c.Type == greeks.Call && between(f.RSI, d.P.LongRSI[0], d.P.LongRSI[1]):
		action, dir = signal.BuyCall, signal.Bullish
	case f.Momentum < 0 && c.Type == greeks.Put && between(f.RSI, d.P.ShortRSI[0], d.P.ShortRSI[1]):
		action, dir = signal.BuyPut, signal.Bearish
	default:
		return signal.Signal{}, false
	}

	s := newSignal(in, signal.Scalping, action, dir, d.P.BaseConfidence, in.Now.Add(d.P.Horizon))
	entry := c.Ask
	price(&s, entry, entry*(1+d.P.TargetPct), entry*(1-d.P.StopPct))
	s.Legs = []signal.Leg{leg(c, 1, entry)}
	s.Note(fmt.Sprintf("scalp: %.1f%% 1m momentum, RSI %.0f, delta %.2f, %d vol", f.Momentum*100, f.RSI, c.Delta(), c.Volume))
	return s, true
}

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

type MomentumParams struct {
	MinMove            float64 // 15-minute underlying move, fraction
	MinVolumeRatio     float64
	TargetPct          float64
	StopPct            float64
	BaseConfidence     float64
	BreakoutConfidence float64
	Horizon            time.Duration
}

func DefaultMomentum() MomentumParams {
	return MomentumParams{
		MinMove:            0.03,
		MinVolumeRatio:     3,
		TargetPct:          0.50,
		StopPct:            0.20,
		BaseConfidence:     0.90,
		BreakoutConfidence: 0.93,
		Horizon:            2 * time.Hour,
	}
}

// MomentumRider follows strong 15-minute moves confirmed by a MACD cross and options volume.
type MomentumRider struct{ P MomentumParams }

func (MomentumRider) Strategy() signal.Strategy { return signal.Momentum }

func (d MomentumRider) Detect(in Input) (signal.Signal, bool) {
	c := in.Contract
	f, ok := in.frame(market.FifteenMinute)
	if !ok || !f.Has(indicators.KindMomentum) || !f.Has(indicators.KindMACD) {
		return signal.Signal{}, false
	}
	if math.Abs(f.Momentum) < d.P.MinMove || c.VolumeRatio() < d.P.MinVolumeRatio {
		return signal.Signal{}, false
	}
	up := f.Momentum > 0
	cross := f.MACD.Crossover()
	if (up && cross != 1) || (!up && cross != -1) {
		return signal.Signal{}, false
	}

	action, dir := signal.BuyCall, signal.Bullish
	if !up {
		action, dir = signal.BuyPut, signal.Bearish
	}
	if (up && c.Type != greeks.Call) || (!up && c.Type != greeks.Put) {
		return signal.Signal{}, false
	}

	s := newSignal(in, signal.Momentum, action, dir, d.P.BaseConfidence, in.Now.Add(d.P.Horizon))
	entry := c.Ask
	price(&s, entry, entry*(1+d.P.TargetPct), entry*(1-d.P.StopPct))
	s.Legs = []signal.Leg{leg(c, 1, entry)}
	s.Note(fmt.Sprintf("momentum: %+.1f%% 15m move, %.1fx options volume, MACD cross %+d", f.Momentum*100, c.VolumeRatio(), cross))

	if f.Has(indicators.KindLevels) {
		if level, ok := indicators.BreakoutLevel(f.Levels, f.PrevClose, f.Close, up); ok {
			s.BreakoutLevel = level
			s.Confidence, s.BaseConfidence = d.P.BreakoutConfidence, d.P.BreakoutConfidence
			s.Note(fmt.Sprintf("broke %.2f", level))
		}
	}
	return s, true
}

// Package strategy holds the signal detectors. Each detector is a value with an
// immutable parameter set; detectors are pure and safe to share across goroutines.
package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/indicators"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

// Input is everything a detector may look at for one contract.
type Input struct {
	Contract market.OptionContract
	// Chain holds the other contracts on the same underlying, Greeks filled.
	Chain  []market.OptionContract
	Frames map[market.Timeframe]indicators.Features
	Now    time.Time
}

func (in Input) frame(tf market.Timeframe) (indicators.Features, bool) {
	f, ok := in.Frames[tf]
	return f, ok
}

// Detector emits at most one candidate signal per contract.
type Detector interface {
	Strategy() signal.Strategy
	Detect(in Input) (signal.Signal, bool)
}

// Params bundles every detector's parameters.
type Params struct {
	Scalping       ScalpingParams
	Momentum       MomentumParams
	VolumeSpike    VolumeSpikeParams
	PremiumSelling PremiumSellingParams
	ZeroDTE        ZeroDTEParams
}

func DefaultParams() Params {
	return Params{
		Scalping:       DefaultScalping(),
		Momentum:       DefaultMomentum(),
		VolumeSpike:    DefaultVolumeSpike(),
		PremiumSelling: DefaultPremiumSelling(),
		ZeroDTE:        DefaultZeroDTE(),
	}
}

// Build returns the detectors for the named strategies; an empty list enables all of them.
func Build(names []string, p Params) ([]Detector, error) {
	all := []Detector{
		Scalper{P: p.Scalping},
		MomentumRider{P: p.Momentum},
		SpikeFollower{P: p.VolumeSpike},
		PremiumSeller{P: p.PremiumSelling},
		ZeroDTETrader{P: p.ZeroDTE},
	}
	if len(names) == 0 {
		return all, nil
	}
	var out []Detector
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		found := false
		for _, d := range all {
			if string(d.Strategy()) == name {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}

func newSignal(in Input, strat signal.Strategy, action signal.Action, dir signal.Direction, base float64, expires time.Time) signal.Signal {
	return signal.Signal{
		Strategy:       strat,
		Action:         action,
		Direction:      dir,
		Contract:       in.Contract.Symbol,
		Underlying:     in.Contract.Underlying,
		Confidence:     base,
		BaseConfidence: base,
		CreatedAt:      in.Now,
		ExpiresAt:      expires,
	}
}

// price fixes entry/target/stop and derives the risk/reward.
func price(s *signal.Signal, entry, target, stop float64) {
	s.Entry, s.Target, s.Stop = round2(entry), round4(target), round4(stop)
	s.RiskReward = signal.RiskRewardOf(s.Entry, s.Target, s.Stop)
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round4(x float64) float64 { return math.Round(x*10000) / 10000 }

func absDelta(c market.OptionContract) float64 { return math.Abs(c.Delta()) }

func between(x, lo, hi float64) bool { return x >= lo && x <= hi }

// findLeg looks up the contract of typ at strike with the same expiration date as ref.
func findLeg(chain []market.OptionContract, ref market.OptionContract, typ greeks.OptionType, strike float64) (market.OptionContract, bool) {
	for _, c := range chain {
		if c.Type == typ && math.Abs(c.Strike-strike) < 1e-6 && sameExpiry(c, ref) {
			return c, true
		}
	}
	return market.OptionContract{}, false
}

func sameExpiry(a, b market.OptionContract) bool {
	ay, am, ad := a.Expiration.Date()
	by, bm, bd := b.Expiration.Date()
	return ay == by && am == bm && ad == bd
}

func leg(c market.OptionContract, qty int, px float64) signal.Leg {
	return signal.Leg{Symbol: c.Symbol, Type: c.Type, Strike: c.Strike, Quantity: qty, Price: px}
}

// bidOf is what selling c collects.
func bidOf(c market.OptionContract) float64 {
	if c.Bid > 0 {
		return c.Bid
	}
	return c.Mid()
}

// askOf is what buying c costs.
func askOf(c market.OptionContract) float64 {
	if c.Ask > 0 {
		return c.Ask
	}
	return c.Mid()
}

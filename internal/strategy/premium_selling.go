package strategy

import (
	"fmt"
	"math"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

type PremiumSellingParams struct {
	MinDTE             int
	MaxDTE             int
	MinDelta           float64
	MaxDelta           float64
	WingWidth          float64
	StrangleMinIVRank  float64
	WheelConfidence    float64
	SpreadConfidence   float64
	CondorConfidence   float64
	StrangleConfidence float64
}

func DefaultPremiumSelling() PremiumSellingParams {
	return PremiumSellingParams{
		MinDTE:             30,
		MaxDTE:             45,
		MinDelta:           0.30,
		MaxDelta:           0.40,
		WingWidth:          5,
		StrangleMinIVRank:  50,
		WheelConfidence:    0.73,
		SpreadConfidence:   0.75,
		CondorConfidence:   0.65,
		StrangleConfidence: 0.65,
	}
}

// PremiumSeller sells 30-45 DTE premium as a wheel put, vertical credit
// spread, iron condor or strangle and keeps the strongest structure.
type PremiumSeller struct{ P PremiumSellingParams }

func (PremiumSeller) Strategy() signal.Strategy { return signal.PremiumSelling }

func (d PremiumSeller) Detect(in Input) (signal.Signal, bool) {
	c := in.Contract
	dte := c.DTE(in.Now)
	if dte < d.P.MinDTE || dte > d.P.MaxDTE || !d.shortDelta(c) {
		return signal.Signal{}, false
	}

	var cands []signal.Signal
	for _, build := range []func(Input) (signal.Signal, bool){d.wheel, d.creditSpread, d.ironCondor, d.strangle} {
		if s, ok := build(in); ok {
			cands = append(cands, s)
		}
	}
	if len(cands) == 0 {
		return signal.Signal{}, false
	}
	best := cands[0]
	for _, s := range cands[1:] {
		if s.BaseConfidence > best.BaseConfidence ||
			(s.BaseConfidence == best.BaseConfidence && s.RiskReward > best.RiskReward) {
			best = s
		}
	}
	return best, true
}

func (d PremiumSeller) shortDelta(c market.OptionContract) bool {
	return c.Greeks != nil && between(absDelta(c), d.P.MinDelta, d.P.MaxDelta)
}

func (d PremiumSeller) base(in Input, action signal.Action, dir signal.Direction, conf float64) signal.Signal {
	return newSignal(in, signal.PremiumSelling, action, dir, conf, market.SessionClose(in.Now))
}

func (d PremiumSeller) wheel(in Input) (signal.Signal, bool) {
	c := in.Contract
	if c.Type != greeks.Put {
		return signal.Signal{}, false
	}
	credit := bidOf(c)
	if credit <= 0 {
		return signal.Signal{}, false
	}
	s := d.base(in, signal.SellPut, signal.Bullish, d.P.WheelConfidence)
	price(&s, credit, 0, 2*credit)
	s.Legs = []signal.Leg{leg(c, -1, credit)}
	s.Note(fmt.Sprintf("wheel: sell %.0f put for %.2f, %d DTE, delta %.2f", c.Strike, credit, c.DTE(in.Now), c.Delta()))
	return s, true
}

func (d PremiumSeller) creditSpread(in Input) (signal.Signal, bool) {
	c := in.Contract
	longStrike, action, dir, name := c.Strike-d.P.WingWidth, signal.SellSpread, signal.Bullish, "bull put"
	if c.Type == greeks.Call {
		longStrike, dir, name = c.Strike+d.P.WingWidth, signal.Bearish, "bear call"
	}
	wing, ok := findLeg(in.Chain, c, c.Type, longStrike)
	if !ok {
		return signal.Signal{}, false
	}
	credit := bidOf(c) - askOf(wing)
	if credit <= 0 || credit >= d.P.WingWidth {
		return signal.Signal{}, false
	}
	s := d.base(in, action, dir, d.P.SpreadConfidence)
	price(&s, credit, 0, d.P.WingWidth)
	s.Legs = []signal.Leg{leg(c, -1, bidOf(c)), leg(wing, 1, askOf(wing))}
	s.Note(fmt.Sprintf("%s spread %.0f/%.0f for %.2f credit", name, c.Strike, longStrike, credit))
	return s, true
}

// shortCall picks the call whose |delta| sits in range and nearest the band midpoint.
func (d PremiumSeller) shortCall(in Input) (market.OptionContract, bool) {
	c := in.Contract
	mid := (d.P.MinDelta + d.P.MaxDelta) / 2
	var best market.OptionContract
	found := false
	for _, o := range in.Chain {
		if o.Type != greeks.Call || o.Strike <= c.UnderlyingPrice || !d.shortDelta(o) {
			continue
		}
		if !sameExpiry(o, c) {
			continue
		}
		if !found || math.Abs(absDelta(o)-mid) < math.Abs(absDelta(best)-mid) {
			best, found = o, true
		}
	}
	return best, found
}

func (d PremiumSeller) ironCondor(in Input) (signal.Signal, bool) {
	c := in.Contract
	if c.Type != greeks.Put {
		return signal.Signal{}, false
	}
	longPut, ok := findLeg(in.Chain, c, greeks.Put, c.Strike-d.P.WingWidth)
	if !ok {
		return signal.Signal{}, false
	}
	shortCall, ok := d.shortCall(in)
	if !ok {
		return signal.Signal{}, false
	}
	longCall, ok := findLeg(in.Chain, c, greeks.Call, shortCall.Strike+d.P.WingWidth)
	if !ok {
		return signal.Signal{}, false
	}
	credit := bidOf(c) - askOf(longPut) + bidOf(shortCall) - askOf(longCall)
	if credit <= 0 || credit >= d.P.WingWidth {
		return signal.Signal{}, false
	}
	s := d.base(in, signal.SellIronCondor, signal.Neutral, d.P.CondorConfidence)
	price(&s, credit, 0, d.P.WingWidth)
	s.Legs = []signal.Leg{
		leg(longPut, 1, askOf(longPut)), leg(c, -1, bidOf(c)),
		leg(shortCall, -1, bidOf(shortCall)), leg(longCall, 1, askOf(longCall)),
	}
	s.Note(fmt.Sprintf("iron condor %.0f/%.0f/%.0f/%.0f for %.2f credit", longPut.Strike, c.Strike, shortCall.Strike, longCall.Strike, credit))
	return s, true
}

func (d PremiumSeller) strangle(in Input) (signal.Signal, bool) {
	c := in.Contract
	if c.Type != greeks.Put || c.ImpliedVol <= 0 || c.IVRank <= d.P.StrangleMinIVRank {
		return signal.Signal{}, false
	}
	shortCall, ok := d.shortCall(in)
	if !ok {
		return signal.Signal{}, false
	}
	credit := bidOf(c) + bidOf(shortCall)
	if credit <= 0 {
		return signal.Signal{}, false
	}
	s := d.base(in, signal.SellStrangle, signal.Neutral, d.P.StrangleConfidence)
	price(&s, credit, 0, 2*credit)
	s.Legs = []signal.Leg{leg(c, -1, bidOf(c)), leg(shortCall, -1, bidOf(shortCall))}
	s.Note(fmt.Sprintf("strangle %.0f/%.0f for %.2f credit, IV rank %.0f", c.Strike, shortCall.Strike, credit, c.IVRank))
	return s, true
}

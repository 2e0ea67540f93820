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

type ZeroDTEParams struct {
	Symbols             []string
	WindowStart         [2]int // hour, minute ET
	WindowEnd           [2]int
	FlatBy              [2]int
	MaxOTM              float64 // fraction of underlying
	WingWidth           float64
	FlatBand            float64 // |close/SMA5 - 1| treated as no bias
	ProfitTake          float64
	StopLoss            float64
	SpreadConfidence    float64
	ButterflyConfidence float64
}

func DefaultZeroDTE() ZeroDTEParams {
	return ZeroDTEParams{
		Symbols:             []string{"SPY", "QQQ", "SPX", "IWM"},
		WindowStart:         [2]int{9, 30},
		WindowEnd:           [2]int{11, 0},
		FlatBy:              [2]int{15, 0},
		MaxOTM:              0.02,
		WingWidth:           5,
		FlatBand:            0.001,
		ProfitTake:          0.25,
		StopLoss:            0.50,
		SpreadConfidence:    0.75,
		ButterflyConfidence: 0.65,
	}
}

// ZeroDTETrader sells same-day spreads on index products in the morning window.
type ZeroDTETrader struct{ P ZeroDTEParams }

func (ZeroDTETrader) Strategy() signal.Strategy { return signal.ZeroDTE }

// InWindow reports whether now falls inside the prime entry window.
func (p ZeroDTEParams) InWindow(now time.Time) bool {
	start := market.At(now, p.WindowStart[0], p.WindowStart[1])
	end := market.At(now, p.WindowEnd[0], p.WindowEnd[1])
	return !now.Before(start) && now.Before(end)
}

func (p ZeroDTEParams) approved(sym string) bool {
	for _, s := range p.Symbols {
		if s == sym {
			return true
		}
	}
	return false
}

func (d ZeroDTETrader) Detect(in Input) (signal.Signal, bool) {
	c := in.Contract
	if !d.P.approved(c.Underlying) || !c.IsZeroDTE(in.Now) || !d.P.InWindow(in.Now) {
		return signal.Signal{}, false
	}
	f, ok := in.frame(market.OneMinute)
	if !ok || !f.Has(indicators.KindSMA5) || f.SMA5 <= 0 {
		return signal.Signal{}, false
	}
	bias := f.Close/f.SMA5 - 1

	switch {
	case bias > d.P.FlatBand:
		return d.vertical(in, greeks.Put, bias)
	case bias < -d.P.FlatBand:
		return d.vertical(in, greeks.Call, bias)
	}
	return d.butterfly(in, bias)
}

func (d ZeroDTETrader) newSignal(in Input, action signal.Action, dir signal.Direction, conf, credit float64) signal.Signal {
	s := newSignal(in, signal.ZeroDTE, action, dir, conf, market.At(in.Now, d.P.FlatBy[0], d.P.FlatBy[1]))
	price(&s, credit, credit*(1-d.P.ProfitTake), credit*(1+d.P.StopLoss))
	return s
}

// vertical sells an OTM put spread on bullish bias or call spread on bearish bias.
func (d ZeroDTETrader) vertical(in Input, typ greeks.OptionType, bias float64) (signal.Signal, bool) {
	c := in.Contract
	u := c.UnderlyingPrice
	if c.Type != typ {
		return signal.Signal{}, false
	}
	otm := (u - c.Strike) / u
	longStrike, dir, name := c.Strike-d.P.WingWidth, signal.Bullish, "bull put"
	if typ == greeks.Call {
		otm = (c.Strike - u) / u
		longStrike, dir, name = c.Strike+d.P.WingWidth, signal.Bearish, "bear call"
	}
	if otm <= 0 || otm > d.P.MaxOTM {
		return signal.Signal{}, false
	}
	wing, ok := findLeg(in.Chain, c, typ, longStrike)
	if !ok {
		return signal.Signal{}, false
	}
	credit := bidOf(c) - askOf(wing)
	if credit <= 0 {
		return signal.Signal{}, false
	}
	s := d.newSignal(in, signal.SellSpread, dir, d.P.SpreadConfidence, credit)
	s.Legs = []signal.Leg{leg(c, -1, bidOf(c)), leg(wing, 1, askOf(wing))}
	s.Note(fmt.Sprintf("0DTE %s spread %.0f/%.0f for %.2f, SMA5 bias %+.2f%%", name, c.Strike, longStrike, credit, bias*100))
	return s, true
}

// butterfly sells the ATM straddle with wings when the tape is flat. The ATM
// put anchors the structure so it is emitted once per chain.
func (d ZeroDTETrader) butterfly(in Input, bias float64) (signal.Signal, bool) {
	c := in.Contract
	if c.Type != greeks.Put || atmStrike(in) != c.Strike {
		return signal.Signal{}, false
	}
	call, ok := findLeg(in.Chain, c, greeks.Call, c.Strike)
	if !ok {
		return signal.Signal{}, false
	}
	longPut, ok := findLeg(in.Chain, c, greeks.Put, c.Strike-d.P.WingWidth)
	if !ok {
		return signal.Signal{}, false
	}
	longCall, ok := findLeg(in.Chain, c, greeks.Call, c.Strike+d.P.WingWidth)
	if !ok {
		return signal.Signal{}, false
	}
	credit := bidOf(c) + bidOf(call) - askOf(longPut) - askOf(longCall)
	if credit <= 0 {
		return signal.Signal{}, false
	}
	s := d.newSignal(in, signal.SellIronButterfly, signal.Neutral, d.P.ButterflyConfidence, credit)
	s.Legs = []signal.Leg{
		leg(longPut, 1, askOf(longPut)), leg(c, -1, bidOf(c)),
		leg(call, -1, bidOf(call)), leg(longCall, 1, askOf(longCall)),
	}
	s.Note(fmt.Sprintf("0DTE iron butterfly at %.0f for %.2f, SMA5 bias %+.2f%%", c.Strike, credit, bias*100))
	return s, true
}

// atmStrike is the chain strike closest to the underlying, the contract's own included.
func atmStrike(in Input) float64 {
	c := in.Contract
	best := c.Strike
	for _, o := range in.Chain {
		if math.Abs(o.Strike-c.UnderlyingPrice) < math.Abs(best-c.UnderlyingPrice) {
			best = o.Strike
		}
	}
	return best
}

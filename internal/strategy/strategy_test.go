package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/indicators"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

var (
	scanTime = time.Date(2024, 11, 13, 10, 0, 0, 0, market.Location())
	today    = time.Date(2024, 11, 13, 0, 0, 0, 0, market.Location())
)

func opt(sym string, typ greeks.OptionType, strike, bid, ask, delta float64, exp time.Time) market.OptionContract {
	return market.OptionContract{
		Symbol:          sym,
		Underlying:      "SPY",
		Strike:          strike,
		Expiration:      exp,
		Type:            typ,
		Bid:             bid,
		Ask:             ask,
		Volume:          1200,
		AvgVolume30d:    1000,
		Greeks:          &greeks.Greeks{Delta: delta},
		UnderlyingPrice: 450,
		Timestamp:       scanTime,
	}
}

func oneMinute(momentum, rsi float64) map[market.Timeframe]indicators.Features {
	return map[market.Timeframe]indicators.Features{
		market.OneMinute: {Timeframe: market.OneMinute, Momentum: momentum, RSI: rsi},
	}
}

func TestScalpingBullishReversal(t *testing.T) {
	c := opt("SPY-C-452", greeks.Call, 452, 1.40, 1.45, 0.65, today.AddDate(0, 0, 2))
	s, ok := Scalper{P: DefaultScalping()}.Detect(Input{Contract: c, Frames: oneMinute(0.032, 35), Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.BuyCall, s.Action)
	assert.InDelta(t, 1.45, s.Entry, 1e-9)
	assert.InDelta(t, 1.6675, s.Target, 1e-9)
	assert.InDelta(t, 1.3775, s.Stop, 1e-9)
	assert.InDelta(t, 0.85, s.Confidence, 1e-9)
	assert.InDelta(t, 3.0, s.RiskReward, 1e-6)
	assert.Equal(t, scanTime.Add(5*time.Minute), s.ExpiresAt)
	assert.True(t, s.Oriented())
}

func TestScalpingGates(t *testing.T) {
	base := opt("SPY-C-452", greeks.Call, 452, 1.40, 1.45, 0.65, today.AddDate(0, 0, 2))
	for _, tc := range []struct {
		name   string
		mutate func(c *market.OptionContract)
		frames map[market.Timeframe]indicators.Features
	}{
		{"wide spread", func(c *market.OptionContract) { c.Ask = 1.55 }, oneMinute(0.032, 35)},
		{"thin volume", func(c *market.OptionContract) { c.Volume = 900 }, oneMinute(0.032, 35)},
		{"low delta", func(c *market.OptionContract) { c.Greeks.Delta = 0.30 }, oneMinute(0.032, 35)},
		{"weak momentum", nil, oneMinute(0.02, 35)},
		{"rsi outside band", nil, oneMinute(0.032, 50)},
		{"falling tape on a call", nil, oneMinute(-0.032, 65)},
		{"no history", nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			c.Greeks = &greeks.Greeks{Delta: 0.65}
			if tc.mutate != nil {
				tc.mutate(&c)
			}
			_, ok := Scalper{P: DefaultScalping()}.Detect(Input{Contract: c, Frames: tc.frames, Now: scanTime})
			assert.False(t, ok)
		})
	}

	put := opt("SPY-P-448", greeks.Put, 448, 1.40, 1.45, -0.55, today.AddDate(0, 0, 2))
	s, ok := Scalper{P: DefaultScalping()}.Detect(Input{Contract: put, Frames: oneMinute(-0.031, 65), Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.BuyPut, s.Action)
	assert.Equal(t, signal.Bearish, s.Direction)
}

func TestMomentumDetector(t *testing.T) {
	c := opt("SPY-C-455", greeks.Call, 455, 2.00, 2.00, 0.45, today.AddDate(0, 0, 7))
	c.Volume, c.AvgVolume30d = 3500, 1000
	f := indicators.Features{
		Timeframe: market.FifteenMinute,
		Momentum:  0.035,
		MACD:      indicators.MACDResult{PrevHistogram: -0.1, Histogram: 0.2},
		Close:     103,
		PrevClose: 99.9,
		Missing:   indicators.KindLevels,
	}
	in := Input{Contract: c, Frames: map[market.Timeframe]indicators.Features{market.FifteenMinute: f}, Now: scanTime}

	s, ok := MomentumRider{P: DefaultMomentum()}.Detect(in)
	require.True(t, ok)
	assert.Equal(t, signal.BuyCall, s.Action)
	assert.InDelta(t, 3.0, s.Target, 1e-9)
	assert.InDelta(t, 1.6, s.Stop, 1e-9)
	assert.InDelta(t, 0.90, s.Confidence, 1e-9)
	assert.Zero(t, s.BreakoutLevel)

	f.Missing = 0
	f.Levels = indicators.Levels{Resistance: []float64{100}}
	in.Frames[market.FifteenMinute] = f
	s, ok = MomentumRider{P: DefaultMomentum()}.Detect(in)
	require.True(t, ok)
	assert.Equal(t, 100.0, s.BreakoutLevel)
	assert.InDelta(t, 0.93, s.Confidence, 1e-9)

	f.MACD = indicators.MACDResult{PrevHistogram: 0.1, Histogram: 0.2}
	in.Frames[market.FifteenMinute] = f
	_, ok = MomentumRider{P: DefaultMomentum()}.Detect(in)
	assert.False(t, ok, "no fresh crossover")

	in.Contract.Volume = 2000
	f.MACD = indicators.MACDResult{PrevHistogram: -0.1, Histogram: 0.2}
	in.Frames[market.FifteenMinute] = f
	_, ok = MomentumRider{P: DefaultMomentum()}.Detect(in)
	assert.False(t, ok, "options volume below 3x")
}

func TestVolumeSpikeDetector(t *testing.T) {
	c := opt("SPY-C-455", greeks.Call, 455, 3.90, 4.10, 0.45, today.AddDate(0, 0, 7))
	c.Volume, c.AvgVolume30d = 6000, 1000
	block := market.BlockTrade{Size: 1000, Price: 4.00, Side: market.Buy}
	c.BlockTrades = []market.BlockTrade{block, block, block}

	s, ok := SpikeFollower{P: DefaultVolumeSpike()}.Detect(Input{Contract: c, Now: scanTime})
	require.True(t, ok)
	assert.True(t, s.Advisory)
	assert.Equal(t, signal.FollowFlow, s.Action)
	assert.Equal(t, signal.Bullish, s.Direction)
	assert.Zero(t, s.Target)
	assert.Zero(t, s.Stop)
	assert.Zero(t, s.RiskReward)
	assert.InDelta(t, 1_200_000, NetPremiumFlow(c), 1e-6)

	for i := range c.BlockTrades {
		c.BlockTrades[i].Side = market.Sell
	}
	s, ok = SpikeFollower{P: DefaultVolumeSpike()}.Detect(Input{Contract: c, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.Bearish, s.Direction)

	c.BlockTrades = c.BlockTrades[:2]
	_, ok = SpikeFollower{P: DefaultVolumeSpike()}.Detect(Input{Contract: c, Now: scanTime})
	assert.False(t, ok, "two blocks are not enough")
}

func premiumChain(exp time.Time) []market.OptionContract {
	return []market.OptionContract{
		opt("P440", greeks.Put, 440, 3.00, 3.10, -0.35, exp),
		opt("P435", greeks.Put, 435, 2.00, 2.10, -0.28, exp),
		opt("C460", greeks.Call, 460, 2.50, 2.60, 0.33, exp),
		opt("C465", greeks.Call, 465, 1.50, 1.60, 0.25, exp),
	}
}

func TestPremiumSellingPicksSpread(t *testing.T) {
	exp := today.AddDate(0, 0, 35)
	chain := premiumChain(exp)
	s, ok := PremiumSeller{P: DefaultPremiumSelling()}.Detect(Input{Contract: chain[0], Chain: chain, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellSpread, s.Action)
	assert.InDelta(t, 0.90, s.Entry, 1e-9)
	assert.Zero(t, s.Target)
	assert.Equal(t, 5.0, s.Stop)
	assert.InDelta(t, 0.75, s.Confidence, 1e-9)
	assert.Len(t, s.Legs, 2)
	assert.True(t, s.Oriented())
	assert.Equal(t, market.SessionClose(scanTime), s.ExpiresAt)
}

func TestPremiumSellingFallsBackToWheel(t *testing.T) {
	exp := today.AddDate(0, 0, 35)
	chain := premiumChain(exp)
	chain = append(chain[:1], chain[2:]...) // no put wing
	s, ok := PremiumSeller{P: DefaultPremiumSelling()}.Detect(Input{Contract: chain[0], Chain: chain, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellPut, s.Action)
	assert.InDelta(t, 3.00, s.Entry, 1e-9)
	assert.InDelta(t, 6.00, s.Stop, 1e-9)
	assert.InDelta(t, 0.73, s.Confidence, 1e-9)
}

func TestPremiumSellingCondorAndStrangle(t *testing.T) {
	exp := today.AddDate(0, 0, 35)
	chain := premiumChain(exp)
	p := DefaultPremiumSelling()
	p.WheelConfidence, p.SpreadConfidence = 0.5, 0.5

	s, ok := PremiumSeller{P: p}.Detect(Input{Contract: chain[0], Chain: chain, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellIronCondor, s.Action)
	assert.InDelta(t, 1.80, s.Entry, 1e-9)
	assert.Len(t, s.Legs, 4)

	strangleOnly := []market.OptionContract{chain[0], chain[2]}
	strangleOnly[0].ImpliedVol, strangleOnly[0].IVRank = 0.3, 60
	s, ok = PremiumSeller{P: p}.Detect(Input{Contract: strangleOnly[0], Chain: strangleOnly, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellStrangle, s.Action)
	assert.InDelta(t, 5.50, s.Entry, 1e-9)
	assert.InDelta(t, 11.0, s.Stop, 1e-9)

	strangleOnly[0].IVRank = 40
	s, ok = PremiumSeller{P: p}.Detect(Input{Contract: strangleOnly[0], Chain: strangleOnly, Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellPut, s.Action, "strangle needs IV rank above 50")
}

func TestPremiumSellingGates(t *testing.T) {
	chain := premiumChain(today.AddDate(0, 0, 20))
	_, ok := PremiumSeller{P: DefaultPremiumSelling()}.Detect(Input{Contract: chain[0], Chain: chain, Now: scanTime})
	assert.False(t, ok, "DTE below 30")

	chain = premiumChain(today.AddDate(0, 0, 35))
	_, ok = PremiumSeller{P: DefaultPremiumSelling()}.Detect(Input{Contract: chain[1], Chain: chain, Now: scanTime})
	assert.False(t, ok, "delta 0.28 outside band")
}

func zeroChain() []market.OptionContract {
	return []market.OptionContract{
		opt("P445", greeks.Put, 445, 1.20, 1.25, -0.30, today),
		opt("P440", greeks.Put, 440, 0.35, 0.40, -0.15, today),
		opt("P450", greeks.Put, 450, 3.00, 3.05, -0.50, today),
		opt("C450", greeks.Call, 450, 3.20, 3.25, 0.50, today),
		opt("C455", greeks.Call, 455, 1.10, 1.15, 0.30, today),
		opt("C460", greeks.Call, 460, 0.25, 0.30, 0.12, today),
	}
}

func zeroFrames(close, sma5 float64) map[market.Timeframe]indicators.Features {
	return map[market.Timeframe]indicators.Features{
		market.OneMinute: {Timeframe: market.OneMinute, Close: close, SMA5: sma5},
	}
}

func TestZeroDTEBullPutSpread(t *testing.T) {
	chain := zeroChain()
	s, ok := ZeroDTETrader{P: DefaultZeroDTE()}.Detect(Input{Contract: chain[0], Chain: chain, Frames: zeroFrames(451, 450), Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellSpread, s.Action)
	assert.Equal(t, signal.Bullish, s.Direction)
	assert.InDelta(t, 0.80, s.Entry, 1e-9)
	assert.InDelta(t, 0.60, s.Target, 1e-9)
	assert.InDelta(t, 1.20, s.Stop, 1e-9)
	assert.Equal(t, market.At(scanTime, 15, 0), s.ExpiresAt)
	assert.True(t, s.Oriented())
}

func TestZeroDTEBearCallAndButterfly(t *testing.T) {
	chain := zeroChain()
	z := ZeroDTETrader{P: DefaultZeroDTE()}

	s, ok := z.Detect(Input{Contract: chain[4], Chain: chain, Frames: zeroFrames(448, 450), Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.Bearish, s.Direction)
	assert.InDelta(t, 0.80, s.Entry, 1e-9)

	s, ok = z.Detect(Input{Contract: chain[2], Chain: chain, Frames: zeroFrames(450.2, 450), Now: scanTime})
	require.True(t, ok)
	assert.Equal(t, signal.SellIronButterfly, s.Action)
	assert.InDelta(t, 0.65, s.Confidence, 1e-9)
	assert.InDelta(t, 3.80, s.Entry, 1e-9)

	_, ok = z.Detect(Input{Contract: chain[0], Chain: chain, Frames: zeroFrames(450.2, 450), Now: scanTime})
	assert.False(t, ok, "only the ATM put anchors a butterfly")
}

func TestZeroDTEGates(t *testing.T) {
	chain := zeroChain()
	z := ZeroDTETrader{P: DefaultZeroDTE()}
	frames := zeroFrames(451, 450)

	_, ok := z.Detect(Input{Contract: chain[0], Chain: chain, Frames: frames, Now: market.At(scanTime, 11, 30)})
	assert.False(t, ok, "outside prime window")

	other := chain[0]
	other.Underlying = "AAPL"
	_, ok = z.Detect(Input{Contract: other, Chain: chain, Frames: frames, Now: scanTime})
	assert.False(t, ok, "symbol not approved")

	far := opt("P430", greeks.Put, 430, 0.20, 0.25, -0.05, today)
	_, ok = z.Detect(Input{Contract: far, Chain: append(chain, far), Frames: frames, Now: scanTime})
	assert.False(t, ok, "more than 2% OTM")
}

func TestBuild(t *testing.T) {
	all, err := Build(nil, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, all, 5)

	some, err := Build([]string{"scalping", " Zero_DTE "}, DefaultParams())
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, signal.ZeroDTE, some[1].Strategy())

	_, err = Build([]string{"swing"}, DefaultParams())
	assert.Error(t, err)
}

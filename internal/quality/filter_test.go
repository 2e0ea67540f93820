package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/optsignal/internal/greeks"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 11, 13, hh, mm, 0, 0, market.Location())
}

// plain is a contract that triggers volume -30%, delta +10%, neutral spread and 30 DTE.
func plain() market.OptionContract {
	return market.OptionContract{
		Symbol:          "SPY-C",
		Type:            greeks.Call,
		Strike:          452,
		Bid:             1.40,
		Ask:             1.45,
		Volume:          1200,
		AvgVolume30d:    1000,
		Greeks:          &greeks.Greeks{Delta: 0.55},
		UnderlyingPrice: 450,
		Expiration:      time.Date(2024, 12, 13, 0, 0, 0, 0, market.Location()),
	}
}

func scalp(base float64) signal.Signal {
	return signal.Signal{Strategy: signal.Scalping, Action: signal.BuyCall, Confidence: base, BaseConfidence: base, RiskReward: 2}
}

func TestOpeningRushVersusMidday(t *testing.T) {
	f := New(DefaultMinConfidence)
	morning := f.Apply(scalp(0.5), plain(), at(9, 45))
	midday := f.Apply(scalp(0.5), plain(), at(11, 30))

	assert.InDelta(t, 0.5775, morning.Confidence, 1e-9)
	assert.InDelta(t, 0.308, midday.Confidence, 1e-9)
	assert.InDelta(t, 1.875, morning.Confidence/midday.Confidence, 1e-9)
	assert.False(t, morning.Passed)
}

func TestStageOrderIsFixed(t *testing.T) {
	res := New(0).Apply(scalp(0.5), plain(), at(9, 45))
	require.Len(t, res.Adjustments, 3)
	assert.Equal(t, StageTimeOfDay, res.Adjustments[0].Stage)
	assert.Equal(t, StageVolume, res.Adjustments[1].Stage)
	assert.Equal(t, StageDelta, res.Adjustments[2].Stage)
	for i := 1; i < len(res.Adjustments); i++ {
		assert.Equal(t, res.Adjustments[i-1].After, res.Adjustments[i].Before)
	}
}

func TestClampedAfterEveryStage(t *testing.T) {
	c := plain()
	c.Volume = 20000 // 20x
	c.Bid, c.Ask = 1.44, 1.45
	c.Expiration = time.Date(2024, 11, 15, 0, 0, 0, 0, market.Location())
	s := scalp(0.9)
	s.RiskReward = 3

	res := New(0).Apply(s, c, at(9, 45))
	assert.Equal(t, signal.MaxConfidence, res.Confidence)
	assert.True(t, res.Passed)
	for _, a := range res.Adjustments {
		assert.LessOrEqual(t, a.After, signal.MaxConfidence)
	}
}

func TestConfidenceAlwaysBounded(t *testing.T) {
	f := New(0)
	for _, base := range []float64{0, 0.3, 0.85, 0.95, 1.5} {
		for _, hour := range []int{4, 9, 10, 12, 14, 15, 20} {
			for _, vol := range []int64{0, 3500, 6000, 15000} {
				for _, rr := range []float64{0.5, 2, 4} {
					for _, strat := range []signal.Strategy{signal.Scalping, signal.VolumeSpike, signal.PremiumSelling} {
						c := plain()
						c.Volume = vol
						c.ImpliedVol, c.IVRank = 0.4, 80
						s := signal.Signal{Strategy: strat, Confidence: base, RiskReward: rr}
						res := f.Apply(s, c, at(hour, 30))
						assert.GreaterOrEqual(t, res.Confidence, 0.0)
						assert.LessOrEqual(t, res.Confidence, signal.MaxConfidence)
					}
				}
			}
		}
	}
}

func TestIVRankStage(t *testing.T) {
	c := plain()
	f := New(0)

	res := f.Apply(scalp(0.5), c, at(9, 45))
	for _, a := range res.Adjustments {
		assert.NotEqual(t, StageIVRank, a.Stage, "unknown IV skips the stage")
	}

	c.ImpliedVol, c.IVRank = 0.2, 20
	res = f.Apply(scalp(0.5), c, at(9, 45))
	assert.InDelta(t, 0.5775*0.9, res.Confidence, 1e-9)

	spike := signal.Signal{Strategy: signal.VolumeSpike, Confidence: 0.5, Advisory: true}
	c.IVRank = 80
	res = f.Apply(spike, c, at(9, 45))
	// 0.5 * 1.5 * 0.7 * 1.1 (delta) * 1.1 (IV rank); R/R skipped for advisory
	assert.InDelta(t, 0.5*1.5*0.7*1.1*1.1, res.Confidence, 1e-9)
}

func TestDTEStage(t *testing.T) {
	c := plain()
	c.Expiration = time.Date(2024, 11, 13, 0, 0, 0, 0, market.Location())
	s := signal.Signal{Strategy: signal.ZeroDTE, Action: signal.SellSpread, Confidence: 0.5, RiskReward: 0.3}

	res := New(0).Apply(s, c, at(10, 0))
	assert.Equal(t, StageDTE, res.Adjustments[len(res.Adjustments)-1].Stage)
	assert.InDelta(t, 0.2, res.Adjustments[len(res.Adjustments)-1].Bonus, 1e-12)

	res = New(0).Apply(s, c, at(13, 0))
	assert.InDelta(t, -0.4, res.Adjustments[len(res.Adjustments)-1].Bonus, 1e-12)
}

func TestRiskRewardStage(t *testing.T) {
	low := scalp(0.5)
	low.RiskReward = 1.0
	high := scalp(0.5)
	high.RiskReward = 3.0

	f := New(0)
	lo := f.Apply(low, plain(), at(9, 45))
	hi := f.Apply(high, plain(), at(9, 45))
	assert.InDelta(t, 0.5775*0.7, lo.Confidence, 1e-9)
	assert.InDelta(t, 0.5775*1.2, hi.Confidence, 1e-9)
}

func TestCreditRiskRewardTiers(t *testing.T) {
	c := plain()
	c.Type = greeks.Put
	c.Volume = 20000
	c.Bid, c.Ask = 1.44, 1.45
	c.Expiration = time.Date(2024, 11, 13, 0, 0, 0, 0, market.Location())
	f := New(DefaultMinConfidence)

	cases := []struct {
		name   string
		action signal.Action
		rr     float64
		bonus  float64
		staged bool
	}{
		{"0DTE profit take against stop", signal.SellSpread, 0.5, 0.20, true},
		{"wheel", signal.SellPut, 1.0, 0.20, true},
		{"thin condor credit", signal.SellIronCondor, 0.15, -0.30, true},
		{"fair spread credit", signal.SellSpread, 0.32, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := signal.Signal{Strategy: signal.ZeroDTE, Action: tc.action, Confidence: 0.75, RiskReward: tc.rr}
			res := f.Apply(s, c, at(9, 45))
			last := res.Adjustments[len(res.Adjustments)-1]
			if !tc.staged {
				assert.NotEqual(t, StageRiskReward, last.Stage)
				return
			}
			assert.Equal(t, StageRiskReward, last.Stage)
			assert.InDelta(t, tc.bonus, last.Bonus, 1e-12)
		})
	}

	// the best case for a same-day spread clears the threshold
	res := f.Apply(signal.Signal{Strategy: signal.ZeroDTE, Action: signal.SellSpread, Confidence: 0.75, RiskReward: 0.5}, c, at(9, 45))
	assert.True(t, res.Passed)
	assert.Equal(t, signal.MaxConfidence, res.Confidence)
}

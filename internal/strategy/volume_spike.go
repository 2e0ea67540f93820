package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

type VolumeSpikeParams struct {
	MinVolumeRatio float64
	MinBlocks      int
	MinBlockSize   int64
	MinNetPremium  float64 // dollars
	BaseConfidence float64
	Horizon        time.Duration
}

func DefaultVolumeSpike() VolumeSpikeParams {
	return VolumeSpikeParams{
		MinVolumeRatio: 5,
		MinBlocks:      3,
		MinBlockSize:   100,
		MinNetPremium:  1_000_000,
		BaseConfidence: 0.88,
		Horizon:        time.Hour,
	}
}

// SpikeFollower flags unusual activity and advises following the block flow.
type SpikeFollower struct{ P VolumeSpikeParams }

func (SpikeFollower) Strategy() signal.Strategy { return signal.VolumeSpike }

// NetPremiumFlow is the signed dollar premium of the prints; buys add, sells subtract.
func NetPremiumFlow(c market.OptionContract) float64 {
	var flow float64
	for _, b := range c.BlockTrades {
		px := b.Price
		if px <= 0 {
			px = c.Mid()
		}
		premium := float64(b.Size) * px * 100
		if b.Side == market.Sell {
			flow -= premium
		} else {
			flow += premium
		}
	}
	return flow
}

func (d SpikeFollower) Detect(in Input) (signal.Signal, bool) {
	c := in.Contract
	if c.VolumeRatio() < d.P.MinVolumeRatio {
		return signal.Signal{}, false
	}
	blocks := 0
	for _, b := range c.BlockTrades {
		if b.Size >= d.P.MinBlockSize {
			blocks++
		}
	}
	if blocks < d.P.MinBlocks {
		return signal.Signal{}, false
	}
	flow := NetPremiumFlow(c)
	if math.Abs(flow) < d.P.MinNetPremium {
		return signal.Signal{}, false
	}

	dir := signal.Bullish
	if flow < 0 {
		dir = signal.Bearish
	}
	s := newSignal(in, signal.VolumeSpike, signal.FollowFlow, dir, d.P.BaseConfidence, in.Now.Add(d.P.Horizon))
	s.Advisory = true
	s.Entry = round2(c.Mid())
	s.Note(fmt.Sprintf("unusual activity: %.1fx volume, $%.1fM %s flow, %d blocks", c.VolumeRatio(), flow/1e6, dir, blocks))
	return s, true
}

package market

import "time"

// MaxWindow bounds how many recent bars any computation reads.
const MaxWindow = 200

type Timeframe string

const (
	OneMinute     Timeframe = "1m"
	FiveMinute    Timeframe = "5m"
	FifteenMinute Timeframe = "15m"
)

// Timeframes lists the confirmation timeframes, fastest first.
var Timeframes = []Timeframe{OneMinute, FiveMinute, FifteenMinute}

type PriceBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// History holds the underlying's bars per timeframe, oldest first.
type History map[Timeframe][]PriceBar

// Bars returns at most MaxWindow of the most recent bars for tf.
func (h History) Bars(tf Timeframe) []PriceBar {
	bars := h[tf]
	if len(bars) > MaxWindow {
		bars = bars[len(bars)-MaxWindow:]
	}
	return bars
}

func (h History) Closes(tf Timeframe) []float64 {
	bars := h.Bars(tf)
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func (h History) Volumes(tf Timeframe) []float64 {
	bars := h.Bars(tf)
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

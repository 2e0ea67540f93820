// Package indicators computes technical indicators over bounded price windows.
// Series are ordered oldest first; the most recent value is last.
package indicators

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chidi150c/optsignal/internal/market"
)

var ErrInsufficientData = errors.New("insufficient history")

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%w: %s needs %d points, have %d", ErrInsufficientData, name, need, have)
}

func tail(xs []float64, n int) []float64 { return xs[len(xs)-n:] }

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("sma", len(values), period)
	}
	return stat.Mean(tail(values, period), nil), nil
}

// EMASeries returns the exponential average at every point, seeded with the
// first value (no bias adjustment).
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func EMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("ema", len(values), period)
	}
	s := EMASeries(values, period)
	return s[len(s)-1], nil
}

// RSI uses plain averages of gains and losses over the last period changes.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, insufficient("rsi", len(closes), period+1)
	}
	window := tail(closes, period+1)
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

type MACDResult struct {
	Line          float64 `json:"line"`
	Signal        float64 `json:"signal"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"prev_histogram"`
}

// Crossover is +1 when the histogram turned positive on the last bar,
// -1 when it turned negative, 0 otherwise.
func (m MACDResult) Crossover() int {
	switch {
	case m.PrevHistogram <= 0 && m.Histogram > 0:
		return 1
	case m.PrevHistogram >= 0 && m.Histogram < 0:
		return -1
	}
	return 0
}

func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	need := slow + signal
	if len(closes) < need {
		return MACDResult{}, insufficient("macd", len(closes), need)
	}
	f, s := EMASeries(closes, fast), EMASeries(closes, slow)
	line := make([]float64, len(closes))
	floats.SubTo(line, f, s)
	sig := EMASeries(line, signal)
	n := len(line) - 1
	return MACDResult{
		Line:          line[n],
		Signal:        sig[n],
		Histogram:     line[n] - sig[n],
		PrevHistogram: line[n-1] - sig[n-1],
	}, nil
}

type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger uses the population standard deviation of the last period closes.
func Bollinger(closes []float64, period int, k float64) (Bands, error) {
	if period <= 0 || len(closes) < period {
		return Bands{}, insufficient("bollinger", len(closes), period)
	}
	mean, variance := stat.PopMeanVariance(tail(closes, period), nil)
	sd := math.Sqrt(variance)
	return Bands{Upper: mean + k*sd, Middle: mean, Lower: mean - k*sd}, nil
}

func VWAP(prices, volumes []float64) (float64, error) {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return 0, insufficient("vwap", len(prices), 1)
	}
	total := floats.Sum(volumes)
	if total <= 0 {
		return 0, fmt.Errorf("%w: vwap window has no volume", ErrInsufficientData)
	}
	return floats.Dot(prices, volumes) / total, nil
}

// ATR averages the last period true ranges.
func ATR(bars []market.PriceBar, period int) (float64, error) {
	if period <= 0 || len(bars) < period+1 {
		return 0, insufficient("atr", len(bars), period+1)
	}
	bars = bars[len(bars)-period-1:]
	var sum float64
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low, math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
		sum += tr
	}
	return sum / float64(period), nil
}

type Levels struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// SupportResistance finds closes that are the extreme of the window bars on
// each side. Resistance is the highest n distinct highs, support the lowest n lows.
func SupportResistance(closes []float64, window, n int) (Levels, error) {
	need := 2*window + 1
	if window <= 0 || len(closes) < need {
		return Levels{}, insufficient("support/resistance", len(closes), need)
	}
	highs, lows := map[float64]struct{}{}, map[float64]struct{}{}
	for i := window; i < len(closes)-window; i++ {
		seg := closes[i-window : i+window+1]
		if closes[i] == floats.Max(seg) {
			highs[closes[i]] = struct{}{}
		}
		if closes[i] == floats.Min(seg) {
			lows[closes[i]] = struct{}{}
		}
	}
	var lv Levels
	for h := range highs {
		lv.Resistance = append(lv.Resistance, h)
	}
	for l := range lows {
		lv.Support = append(lv.Support, l)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(lv.Resistance)))
	sort.Float64s(lv.Support)
	if len(lv.Resistance) > n {
		lv.Resistance = lv.Resistance[:n]
	}
	if len(lv.Support) > n {
		lv.Support = lv.Support[:n]
	}
	return lv, nil
}

// Momentum is the fractional change over period bars (0.03 = 3%).
func Momentum(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, insufficient("momentum", len(closes), period+1)
	}
	prev := closes[len(closes)-period-1]
	if prev == 0 {
		return 0, fmt.Errorf("%w: momentum base is zero", ErrInsufficientData)
	}
	return (closes[len(closes)-1] - prev) / prev, nil
}

// BreakoutLevel reports the level price broke through by more than 0.5%
// when the previous close was still on the other side of it.
func BreakoutLevel(lv Levels, prevClose, price float64, up bool) (float64, bool) {
	if up {
		for _, level := range lv.Resistance {
			if price > level*1.005 && prevClose <= level {
				return level, true
			}
		}
		return 0, false
	}
	for _, level := range lv.Support {
		if price < level*0.995 && prevClose >= level {
			return level, true
		}
	}
	return 0, false
}

// VolumeRatio compares the last volume with the mean of the period before it.
func VolumeRatio(volumes []float64, period int) (float64, error) {
	if period <= 0 || len(volumes) < period+1 {
		return 0, insufficient("volume ratio", len(volumes), period+1)
	}
	prior := volumes[len(volumes)-period-1 : len(volumes)-1]
	mean := stat.Mean(prior, nil)
	if mean <= 0 {
		return 1, nil
	}
	return volumes[len(volumes)-1] / mean, nil
}

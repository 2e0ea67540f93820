// Package candles recognizes candlestick patterns on the underlying's bars and
// uses the strongest recent one to confirm or contradict a detector's signal.
package candles

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

const (
	MinBars       = 10   // bars a timeframe needs before patterns are read
	Recent        = 3    // patterns must complete within the last Recent bars
	MinConfidence = 0.60 // weaker patterns are ignored
	trendLookback = 5
)

type Kind string

const (
	Doji               Kind = "doji"
	DragonflyDoji      Kind = "dragonfly_doji"
	GravestoneDoji     Kind = "gravestone_doji"
	Hammer             Kind = "hammer"
	InvertedHammer     Kind = "inverted_hammer"
	HangingMan         Kind = "hanging_man"
	ShootingStar       Kind = "shooting_star"
	BullishEngulfing   Kind = "bullish_engulfing"
	BearishEngulfing   Kind = "bearish_engulfing"
	MorningStar        Kind = "morning_star"
	EveningStar        Kind = "evening_star"
	ThreeWhiteSoldiers Kind = "three_white_soldiers"
	ThreeBlackCrows    Kind = "three_black_crows"
	BullishMarubozu    Kind = "marubozu_bullish"
	BearishMarubozu    Kind = "marubozu_bearish"
	BullishHarami      Kind = "harami_bullish"
	BearishHarami      Kind = "harami_bearish"
	TweezerBottom      Kind = "tweezer_bottom"
	TweezerTop         Kind = "tweezer_top"
	PiercingLine       Kind = "piercing_line"
	DarkCloudCover     Kind = "dark_cloud_cover"
)

type Pattern struct {
	Kind       Kind             `json:"kind"`
	Bias       signal.Direction `json:"bias"`
	Confidence float64          `json:"confidence"`
	Index      int              `json:"index"` // bar that completes the pattern
	Timeframe  market.Timeframe `json:"timeframe,omitempty"`
}

type candle struct {
	market.PriceBar
	body, upper, lower, rng float64
	bullish                 bool
}

func shape(b market.PriceBar) candle {
	return candle{
		PriceBar: b,
		body:     math.Abs(b.Close - b.Open),
		upper:    b.High - math.Max(b.Open, b.Close),
		lower:    math.Min(b.Open, b.Close) - b.Low,
		rng:      b.High - b.Low,
		bullish:  b.Close > b.Open,
	}
}

// Detect returns the patterns completing in the last Recent bars, strongest first.
func Detect(bars []market.PriceBar) []Pattern {
	if len(bars) < 3 {
		return nil
	}
	cs := make([]candle, len(bars))
	for i, b := range bars {
		cs[i] = shape(b)
	}
	from := len(cs) - Recent
	if from < 0 {
		from = 0
	}

	var out []Pattern
	add := func(k Kind, bias signal.Direction, conf float64, i int) {
		if conf >= MinConfidence {
			out = append(out, Pattern{Kind: k, Bias: bias, Confidence: conf, Index: i})
		}
	}
	for i := from; i < len(cs); i++ {
		single(cs, i, add)
		if i >= 1 {
			double(cs, i, add)
		}
		if i >= 2 {
			triple(cs, i, add)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

type addFunc func(k Kind, bias signal.Direction, conf float64, i int)

func single(cs []candle, i int, add addFunc) {
	c := cs[i]
	if c.rng <= 0 {
		return
	}

	if bodyRatio := c.body / c.rng; bodyRatio < 0.1 && i >= 1 {
		switch {
		case c.upper/c.rng > 0.3 && c.upper/c.rng < 0.7:
			bias := signal.Neutral
			switch trend(cs, i, 3) {
			case -1:
				bias = signal.Bullish
			case 1:
				bias = signal.Bearish
			}
			add(Doji, bias, math.Min(1-bodyRatio, 0.85), i)
		case c.lower > c.rng*0.7:
			add(DragonflyDoji, signal.Bullish, math.Min(c.lower/c.rng, 0.95), i)
		case c.upper > c.rng*0.7:
			add(GravestoneDoji, signal.Bearish, math.Min(c.upper/c.rng, 0.95), i)
		}
	}

	if i >= 1 {
		bodyTop := (c.High - math.Max(c.Open, c.Close)) / c.rng
		lowerToBody := math.Inf(1)
		if c.body > 0 {
			lowerToBody = c.lower / c.body
		}
		upperToLower := 0.0
		if c.lower > 0 {
			upperToLower = c.upper / c.lower
		}
		tr := trend(cs, i, trendLookback)
		switch {
		case bodyTop < 0.3 && lowerToBody >= 2 && upperToLower < 0.3:
			extra := math.Min((lowerToBody-2)*0.1, 0.2)
			if tr == 1 {
				add(HangingMan, signal.Bearish, math.Min(0.7+extra, 0.90), i)
				break
			}
			conf := 0.5
			if tr == -1 {
				conf = 0.7
			}
			add(Hammer, signal.Bullish, math.Min(conf+extra, 0.95), i)
		case bodyTop > 0.7 && c.upper >= c.body*2 && c.lower < c.upper*0.3:
			if tr == 1 {
				add(ShootingStar, signal.Bearish, 0.75, i)
				break
			}
			conf := 0.45
			if tr == -1 {
				conf = 0.65
			}
			add(InvertedHammer, signal.Bullish, conf, i)
		}
	}

	if bodyRatio := c.body / c.rng; bodyRatio >= 0.90 {
		if c.bullish {
			add(BullishMarubozu, signal.Bullish, math.Min(bodyRatio, 0.90), i)
		} else {
			add(BearishMarubozu, signal.Bearish, math.Min(bodyRatio, 0.90), i)
		}
	}
}

func double(cs []candle, i int, add addFunc) {
	prev, cur := cs[i-1], cs[i]
	sizeRatio := 2.0
	if prev.body > 0 {
		sizeRatio = cur.body / prev.body
	}
	tr := trend(cs, i, trendLookback)

	switch {
	case !prev.bullish && cur.bullish && cur.Open <= prev.Close && cur.Close > prev.Open:
		conf := math.Min(0.6+(sizeRatio-1)*0.2, 0.95)
		if tr == -1 {
			conf += 0.1
		}
		add(BullishEngulfing, signal.Bullish, math.Min(conf, 0.95), i)
	case prev.bullish && !cur.bullish && cur.Open >= prev.Close && cur.Close < prev.Open:
		conf := math.Min(0.6+(sizeRatio-1)*0.2, 0.95)
		if tr == 1 {
			conf += 0.1
		}
		add(BearishEngulfing, signal.Bearish, math.Min(conf, 0.95), i)
	}

	switch {
	case !prev.bullish && cur.bullish && cur.Open > prev.Close && cur.Close < prev.Open && cur.body < prev.body*0.5:
		add(BullishHarami, signal.Bullish, 0.70, i)
	case prev.bullish && !cur.bullish && cur.Open < prev.Close && cur.Close > prev.Open && cur.body < prev.body*0.5:
		add(BearishHarami, signal.Bearish, 0.70, i)
	}

	if prev.Low > 0 && math.Abs(prev.Low-cur.Low)/prev.Low < 0.002 && !prev.bullish && cur.bullish {
		add(TweezerBottom, signal.Bullish, 0.75, i)
	}
	if prev.High > 0 && math.Abs(prev.High-cur.High)/prev.High < 0.002 && prev.bullish && !cur.bullish {
		add(TweezerTop, signal.Bearish, 0.75, i)
	}

	penetration := func(x float64) float64 {
		if prev.body <= 0 {
			return 0
		}
		return x / prev.body
	}
	mid := (prev.Open + prev.Close) / 2
	switch {
	case !prev.bullish && cur.bullish && cur.Open < prev.Low && cur.Close > mid && cur.Close < prev.Open:
		add(PiercingLine, signal.Bullish, math.Min(0.6+penetration(cur.Close-prev.Close)*0.3, 0.85), i)
	case prev.bullish && !cur.bullish && cur.Open > prev.High && cur.Close < mid && cur.Close > prev.Open:
		add(DarkCloudCover, signal.Bearish, math.Min(0.6+penetration(prev.Close-cur.Close)*0.3, 0.85), i)
	}
}

func triple(cs []candle, i int, add addFunc) {
	a, b, c := cs[i-2], cs[i-1], cs[i]
	tr := trend(cs, i-2, trendLookback)

	switch {
	case !a.bullish && b.body < a.body*0.5 && c.bullish && c.Close > a.Close+a.body*0.5:
		conf := 0.60
		if tr == -1 {
			conf = 0.75
		}
		add(MorningStar, signal.Bullish, conf, i)
	case a.bullish && b.body < a.body*0.5 && !c.bullish && c.Close < a.Close-a.body*0.5:
		conf := 0.60
		if tr == 1 {
			conf = 0.75
		}
		add(EveningStar, signal.Bearish, conf, i)
	}

	switch {
	case a.bullish && b.bullish && c.bullish &&
		b.Close > a.Close && c.Close > b.Close &&
		b.Open > a.Open && b.Open < a.Close && c.Open > b.Open && c.Open < b.Close:
		add(ThreeWhiteSoldiers, signal.Bullish, 0.85, i)
	case !a.bullish && !b.bullish && !c.bullish &&
		b.Close < a.Close && c.Close < b.Close &&
		b.Open < a.Open && b.Open > a.Close && c.Open < b.Open && c.Open > b.Close:
		add(ThreeBlackCrows, signal.Bearish, 0.85, i)
	}
}

// trend fits a line through the lookback closes before index: +1 rising,
// -1 falling, 0 flat or not enough bars.
func trend(cs []candle, index, lookback int) int {
	if index < lookback {
		return 0
	}
	xs := make([]float64, lookback)
	ys := make([]float64, lookback)
	for k := 0; k < lookback; k++ {
		xs[k] = float64(k)
		ys[k] = cs[index-lookback+k].Close
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	threshold := ys[lookback-1] * 0.01 / float64(lookback)
	switch {
	case slope > threshold:
		return 1
	case slope < -threshold:
		return -1
	}
	return 0
}

// Timeframes lists the bar timeframes whose patterns bear on a strategy.
// Credit strategies are not pattern-confirmed.
func Timeframes(st signal.Strategy) []market.Timeframe {
	switch st {
	case signal.Scalping:
		return []market.Timeframe{market.FifteenMinute}
	case signal.Momentum:
		return []market.Timeframe{market.FiveMinute, market.FifteenMinute}
	case signal.VolumeSpike:
		return market.Timeframes
	}
	return nil
}

// DetectAll reads patterns on every timeframe with at least MinBars bars.
func DetectAll(h market.History) map[market.Timeframe][]Pattern {
	out := make(map[market.Timeframe][]Pattern)
	for _, tf := range market.Timeframes {
		bars := h.Bars(tf)
		if len(bars) < MinBars {
			continue
		}
		ps := Detect(bars)
		for k := range ps {
			ps[k].Timeframe = tf
		}
		if len(ps) > 0 {
			out[tf] = ps
		}
	}
	return out
}

// Adjust applies the strongest relevant pattern to s. A pattern on the
// signal's side adds up to 10 points; an opposing one takes 10 off without
// pushing the confidence under 0.5. Neutral patterns only leave a note.
func Adjust(s *signal.Signal, found map[market.Timeframe][]Pattern) bool {
	var (
		best Pattern
		ok   bool
	)
	for _, tf := range Timeframes(s.Strategy) {
		for _, p := range found[tf] {
			if !ok || p.Confidence > best.Confidence {
				best, ok = p, true
			}
		}
	}
	if !ok {
		return false
	}

	switch {
	case best.Bias == signal.Neutral || s.Direction == signal.Neutral:
		s.Note(fmt.Sprintf("pattern: %s on %s, no directional read", best.Kind, best.Timeframe))
	case best.Bias == s.Direction:
		s.Confidence = signal.Clamp(s.Confidence + best.Confidence*0.1)
		s.Note(fmt.Sprintf("pattern: confirmed by %s on %s (%.2f)", best.Kind, best.Timeframe, best.Confidence))
	default:
		s.Confidence = math.Max(math.Min(s.Confidence, 0.5), s.Confidence-0.1)
		s.Note(fmt.Sprintf("pattern: %s on %s contradicts the signal", best.Kind, best.Timeframe))
	}
	return true
}

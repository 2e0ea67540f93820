package indicators

import "github.com/chidi150c/optsignal/internal/market"

// Kind flags one indicator in a Features snapshot.
type Kind uint16

const (
	KindMomentum Kind = 1 << iota
	KindRSI
	KindMACD
	KindBollinger
	KindVWAP
	KindATR
	KindTrend
	KindSMA5
	KindLevels
	KindVolume
)

// Default periods.
const (
	RSIPeriod         = 14
	MACDFast          = 12
	MACDSlow          = 26
	MACDSignal        = 9
	BollingerPeriod   = 20
	BollingerK        = 2.0
	ATRPeriod         = 14
	LevelWindow       = 20
	LevelCount        = 3
	VolumeRatioPeriod = 20
)

// Features is the indicator snapshot of one timeframe. Indicators that lacked
// history are flagged in Missing and left at their zero value.
type Features struct {
	Timeframe   market.Timeframe `json:"timeframe"`
	Close       float64          `json:"close"`
	PrevClose   float64          `json:"prev_close"`
	Momentum    float64          `json:"momentum"`
	RSI         float64          `json:"rsi"`
	MACD        MACDResult       `json:"macd"`
	Bollinger   Bands            `json:"bollinger"`
	VWAP        float64          `json:"vwap"`
	ATR         float64          `json:"atr"`
	EMA9        float64          `json:"ema9"`
	EMA20       float64          `json:"ema20"`
	SMA5        float64          `json:"sma5"`
	Levels      Levels           `json:"levels"`
	VolumeRatio float64          `json:"volume_ratio"`
	Missing     Kind             `json:"missing"`
}

func (f Features) Has(k Kind) bool { return f.Missing&k == 0 }

// Trend is +1 when EMA9 is above EMA20, -1 below, 0 when flat or unknown.
func (f Features) Trend() int {
	if !f.Has(KindTrend) {
		return 0
	}
	switch {
	case f.EMA9 > f.EMA20:
		return 1
	case f.EMA9 < f.EMA20:
		return -1
	}
	return 0
}

// Compute builds the Features snapshot for bars of one timeframe.
func Compute(tf market.Timeframe, bars []market.PriceBar) Features {
	if len(bars) > market.MaxWindow {
		bars = bars[len(bars)-market.MaxWindow:]
	}
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i], volumes[i] = b.Close, b.Volume
	}

	f := Features{Timeframe: tf}
	if n := len(closes); n > 0 {
		f.Close = closes[n-1]
		if n > 1 {
			f.PrevClose = closes[n-2]
		}
	}
	miss := func(k Kind, err error) {
		if err != nil {
			f.Missing |= k
		}
	}

	var err error
	f.Momentum, err = Momentum(closes, 1)
	miss(KindMomentum, err)
	f.RSI, err = RSI(closes, RSIPeriod)
	miss(KindRSI, err)
	f.MACD, err = MACD(closes, MACDFast, MACDSlow, MACDSignal)
	miss(KindMACD, err)
	f.Bollinger, err = Bollinger(closes, BollingerPeriod, BollingerK)
	miss(KindBollinger, err)
	f.VWAP, err = VWAP(closes, volumes)
	miss(KindVWAP, err)
	f.ATR, err = ATR(bars, ATRPeriod)
	miss(KindATR, err)
	f.EMA9, err = EMA(closes, 9)
	miss(KindTrend, err)
	if err == nil {
		f.EMA20, err = EMA(closes, 20)
		miss(KindTrend, err)
	}
	f.SMA5, err = SMA(closes, 5)
	miss(KindSMA5, err)
	f.Levels, err = SupportResistance(closes, LevelWindow, LevelCount)
	miss(KindLevels, err)
	f.VolumeRatio, err = VolumeRatio(volumes, VolumeRatioPeriod)
	miss(KindVolume, err)
	return f
}

// ComputeAll snapshots every confirmation timeframe present in h.
func ComputeAll(h market.History) map[market.Timeframe]Features {
	out := make(map[market.Timeframe]Features, len(market.Timeframes))
	for _, tf := range market.Timeframes {
		if bars := h.Bars(tf); len(bars) > 0 {
			out[tf] = Compute(tf, bars)
		}
	}
	return out
}

// Package timeframe cross-checks a candidate against the 1m, 5m and 15m views of its underlying.
package timeframe

import (
	"fmt"
	"math"

	"github.com/chidi150c/optsignal/internal/indicators"
	"github.com/chidi150c/optsignal/internal/market"
	"github.com/chidi150c/optsignal/internal/signal"
)

type Params struct {
	AllAgree          float64
	TwoAgree          float64
	NoAgreement       float64
	VolumeStrong      float64 // every timeframe at or above this ratio
	VolumeStrongBonus float64
	VolumeFair        float64
	VolumeFairBonus   float64
	VolumePenalty     float64
	MomentumMin       float64
	MomentumVolume    float64 // 15m volume ratio for a volume explosion
	MomentumStrong    float64
	MomentumWeak      float64
	MomentumUnaligned float64
}

func DefaultParams() Params {
	return Params{
		AllAgree:          0.50,
		TwoAgree:          0.33,
		NoAgreement:       -0.67,
		VolumeStrong:      1.5,
		VolumeStrongBonus: 0.15,
		VolumeFair:        1.2,
		VolumeFairBonus:   0.20,
		VolumePenalty:     -0.20,
		MomentumMin:       0.03,
		MomentumVolume:    3,
		MomentumStrong:    0.90,
		MomentumWeak:      0.60,
		MomentumUnaligned: 0.40,
	}
}

// Outcome is the confirmed confidence, or the reason the candidate must wait.
type Outcome struct {
	Confidence float64
	Rejected   bool
	Reason     signal.Reason
	Notes      []string
}

func (o *Outcome) note(format string, args ...any) { o.Notes = append(o.Notes, fmt.Sprintf(format, args...)) }

func (o *Outcome) scale(bonus float64) { o.Confidence = signal.Clamp(o.Confidence * (1 + bonus)) }

func (o *Outcome) reject(r signal.Reason) Outcome {
	o.Rejected, o.Reason = true, r
	return *o
}

type Confirmer struct{ P Params }

func New(p Params) Confirmer { return Confirmer{P: p} }

// all returns the three snapshots when every one is present and carries k.
func all(frames map[market.Timeframe]indicators.Features, k indicators.Kind) ([]indicators.Features, bool) {
	out := make([]indicators.Features, 0, len(market.Timeframes))
	for _, tf := range market.Timeframes {
		f, ok := frames[tf]
		if !ok || !f.Has(k) {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// Confirm runs trend, volume, breakout and the momentum path in that order.
func (c Confirmer) Confirm(s signal.Signal, frames map[market.Timeframe]indicators.Features) Outcome {
	o := Outcome{Confidence: signal.Clamp(s.Confidence)}

	if fs, ok := all(frames, indicators.KindTrend); ok {
		up, down := 0, 0
		for _, f := range fs {
			switch f.Trend() {
			case 1:
				up++
			case -1:
				down++
			}
		}
		agree, majority := up, 1
		if down > up {
			agree, majority = down, -1
		}
		switch agree {
		case 3:
			o.scale(c.P.AllAgree)
		case 2:
			o.scale(c.P.TwoAgree)
		default:
			o.scale(c.P.NoAgreement)
			o.note("trend: no timeframe agreement, wait")
			return o.reject(signal.ReasonTimeframeConflict)
		}
		o.note("trend: %d/3 timeframes agree", agree)
		if dir := s.Direction.Sign(); dir != 0 && dir != majority {
			o.note("trend opposes %s signal", s.Direction)
			return o.reject(signal.ReasonTimeframeConflict)
		}
	} else {
		o.note("trend check skipped: missing timeframe data")
	}

	if fs, ok := all(frames, indicators.KindVolume); ok {
		lo := math.Inf(1)
		for _, f := range fs {
			lo = math.Min(lo, f.VolumeRatio)
		}
		switch {
		case lo >= c.P.VolumeStrong:
			o.scale(c.P.VolumeStrongBonus)
		case lo >= c.P.VolumeFair:
			o.scale(c.P.VolumeFairBonus)
		default:
			o.scale(c.P.VolumePenalty)
		}
		o.note("volume: weakest timeframe %.2fx", lo)
	} else {
		o.note("volume check skipped: missing timeframe data")
	}

	if s.BreakoutLevel > 0 {
		if r, ok := c.breakout(s, frames, &o); ok {
			return o.reject(r)
		}
	}

	if s.Strategy == signal.Momentum {
		if c.momentum(s, frames, &o) {
			return o.reject(signal.ReasonTimeframeConflict)
		}
	}
	return o
}

// breakout reports a rejection reason when the level is not held on every timeframe.
func (c Confirmer) breakout(s signal.Signal, frames map[market.Timeframe]indicators.Features, o *Outcome) (signal.Reason, bool) {
	up := s.Direction.Sign() >= 0
	beyond, seen := 0, 0
	for _, tf := range market.Timeframes {
		f, ok := frames[tf]
		if !ok || f.Close <= 0 {
			continue
		}
		seen++
		if (up && f.Close > s.BreakoutLevel) || (!up && f.Close < s.BreakoutLevel) {
			beyond++
		}
	}
	if seen < len(market.Timeframes) {
		o.note("breakout check skipped: missing timeframe data")
		return "", false
	}
	switch beyond {
	case seen:
		o.note("breakout %.2f held on all timeframes", s.BreakoutLevel)
		return "", false
	case 0:
		o.note("breakout %.2f not confirmed on any timeframe", s.BreakoutLevel)
		return signal.ReasonBreakoutUnconfirmed, true
	}
	o.note("false breakout: %.2f held on %d/%d timeframes", s.BreakoutLevel, beyond, seen)
	return signal.ReasonFalseBreakout, true
}

// momentum fixes the confidence from cross-timeframe momentum and reports a rejection.
func (c Confirmer) momentum(s signal.Signal, frames map[market.Timeframe]indicators.Features, o *Outcome) bool {
	fs, ok := all(frames, indicators.KindMomentum)
	if !ok {
		o.note("momentum check skipped: missing timeframe data")
		return false
	}
	sign := float64(s.Direction.Sign())
	aligned := sign != 0
	for _, f := range fs {
		if f.Momentum*sign < c.P.MomentumMin {
			aligned = false
		}
	}
	slow := frames[market.FifteenMinute]
	explosive := slow.Has(indicators.KindVolume) && slow.VolumeRatio >= c.P.MomentumVolume
	switch {
	case aligned && explosive:
		o.Confidence = signal.Clamp(c.P.MomentumStrong)
		o.note("momentum aligned on all timeframes with %.1fx volume", slow.VolumeRatio)
		return false
	case aligned:
		o.Confidence = signal.Clamp(c.P.MomentumWeak)
		o.note("momentum aligned without volume confirmation")
		return false
	}
	o.Confidence = signal.Clamp(c.P.MomentumUnaligned)
	o.note("momentum not aligned across timeframes, wait")
	return true
}

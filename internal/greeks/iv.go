package greeks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	ivSeed          = 0.30
	ivTolerance     = 1e-5
	ivMaxIterations = 100
	vegaFloor       = 1e-8
	volLow          = 0.01
	volHigh         = 5.0
	bisectMaxSteps  = 200
)

// SolveImpliedVolatility inverts Black-Scholes for sigma. Newton-Raphson runs
// first; a bracketed bisection over [0.01, 5.0] takes over when vega
// underflows or Newton does not settle.
func SolveImpliedVolatility(marketPrice, S, K, T, r float64, typ OptionType) (float64, error) {
	if err := validate(S, K, T, ivSeed); err != nil {
		return 0, err
	}
	if marketPrice <= 0 || math.IsNaN(marketPrice) {
		return 0, fmt.Errorf("%w: market price %.6f", ErrInvalidInput, marketPrice)
	}

	sigma := ivSeed
	for i := 0; i < ivMaxIterations; i++ {
		diff := price(S, K, T, r, sigma, typ) - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}
		v := vegaRaw(S, K, T, r, sigma)
		if v < vegaFloor {
			break
		}
		sigma -= diff / v
		if sigma < volLow || sigma > volHigh || math.IsNaN(sigma) {
			break
		}
	}
	return bisect(marketPrice, S, K, T, r, typ)
}

func bisect(target, S, K, T, r float64, typ OptionType) (float64, error) {
	lo, hi := volLow, volHigh
	fLo := price(S, K, T, r, lo, typ) - target
	fHi := price(S, K, T, r, hi, typ) - target
	if math.Abs(fLo) < ivTolerance {
		return lo, nil
	}
	if math.Abs(fHi) < ivTolerance {
		return hi, nil
	}
	if fLo > 0 || fHi < 0 {
		return 0, fmt.Errorf("%w: price %.6f outside [%.2f, %.2f] volatility bracket", ErrConvergenceFailure, target, volLow, volHigh)
	}
	for i := 0; i < bisectMaxSteps; i++ {
		mid := 0.5 * (lo + hi)
		f := price(S, K, T, r, mid, typ) - target
		if math.Abs(f) < ivTolerance {
			return mid, nil
		}
		if f < 0 {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12 {
			break
		}
	}
	return 0, fmt.Errorf("%w: bisection exhausted for price %.6f", ErrConvergenceFailure, target)
}

// IVRank places current within the min/max range of series on a 0-100 scale.
func IVRank(current float64, series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	lo, hi := floats.Min(series), floats.Max(series)
	if hi == lo {
		return 0
	}
	rank := (current - lo) / (hi - lo) * 100
	return math.Max(0, math.Min(100, rank))
}

// IVPercentile is the share of historical values strictly below current, times 100.
func IVPercentile(current float64, series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	below := 0
	for _, v := range series {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(series)) * 100
}

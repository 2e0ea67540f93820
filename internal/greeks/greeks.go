// Package greeks prices European options with Black-Scholes and recovers implied volatility.
package greeks

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInvalidInput       = errors.New("invalid pricing input")
	ErrConvergenceFailure = errors.New("implied volatility did not converge")
)

// OptionType is the right of the contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Greeks holds Black-Scholes sensitivities.
// Theta is per calendar day, Vega and Rho per one percentage point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

var unitNormal = distuv.UnitNormal

func validate(S, K, T, sigma float64) error {
	switch {
	case T <= 0:
		return fmt.Errorf("%w: time to expiry %.6f", ErrInvalidInput, T)
	case sigma <= 0:
		return fmt.Errorf("%w: volatility %.6f", ErrInvalidInput, sigma)
	case S <= 0:
		return fmt.Errorf("%w: underlying price %.4f", ErrInvalidInput, S)
	case K <= 0:
		return fmt.Errorf("%w: strike %.4f", ErrInvalidInput, K)
	}
	return nil
}

func d1d2(S, K, T, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Price returns the Black-Scholes premium of a European option.
func Price(S, K, T, r, sigma float64, typ OptionType) (float64, error) {
	if err := validate(S, K, T, sigma); err != nil {
		return 0, err
	}
	return price(S, K, T, r, sigma, typ), nil
}

func price(S, K, T, r, sigma float64, typ OptionType) float64 {
	d1, d2 := d1d2(S, K, T, r, sigma)
	disc := K * math.Exp(-r*T)
	if typ == Put {
		return disc*unitNormal.CDF(-d2) - S*unitNormal.CDF(-d1)
	}
	return S*unitNormal.CDF(d1) - disc*unitNormal.CDF(d2)
}

// vegaRaw is dPrice/dSigma per unit of volatility.
func vegaRaw(S, K, T, r, sigma float64) float64 {
	d1, _ := d1d2(S, K, T, r, sigma)
	return S * unitNormal.Prob(d1) * math.Sqrt(T)
}

// Compute returns all first-order sensitivities plus gamma.
func Compute(S, K, T, r, sigma float64, typ OptionType) (Greeks, error) {
	if err := validate(S, K, T, sigma); err != nil {
		return Greeks{}, err
	}
	d1, d2 := d1d2(S, K, T, r, sigma)
	sqrtT := math.Sqrt(T)
	pdf := unitNormal.Prob(d1)
	disc := K * math.Exp(-r*T)

	g := Greeks{
		Gamma: pdf / (S * sigma * sqrtT),
		Vega:  S * pdf * sqrtT / 100,
	}
	decay := -(S * pdf * sigma) / (2 * sqrtT)
	if typ == Put {
		g.Delta = unitNormal.CDF(d1) - 1
		g.Theta = (decay + r*disc*unitNormal.CDF(-d2)) / 365
		g.Rho = -disc * T * unitNormal.CDF(-d2) / 100
	} else {
		g.Delta = unitNormal.CDF(d1)
		g.Theta = (decay - r*disc*unitNormal.CDF(d2)) / 365
		g.Rho = disc * T * unitNormal.CDF(d2) / 100
	}
	return g, nil
}

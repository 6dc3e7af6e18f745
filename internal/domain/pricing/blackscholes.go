package pricing

import (
	"math"

	"hermes/pkg/errors"
)

// Black-Scholes pricing and sensitivities for European options, with a
// Newton-Raphson implied-volatility solver. The risk-free rate defaults
// to zero for on-chain markets unless a caller overrides it.

const (
	// DefaultRiskFreeRate is applied when Inputs.RiskFreeRate is zero-valued
	DefaultRiskFreeRate = 0.0

	ivTolerance     = 1e-8
	ivMaxIterations = 100
	ivMinVol        = 1e-4
	ivMaxVol        = 10.0
)

// Inputs are the Black-Scholes model parameters
type Inputs struct {
	Spot         float64 // underlying spot price
	Strike       float64
	TimeToExpiry float64 // in years
	Volatility   float64 // annualized
	RiskFreeRate float64
	IsCall       bool
}

// Greeks holds the option price and its sensitivities
type Greeks struct {
	Price             float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	Rho               float64
	ImpliedVolatility float64
}

func (in Inputs) validate() error {
	if in.Spot <= 0 || in.Strike <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "spot and strike must be positive")
	}
	if in.Volatility <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "volatility must be positive")
	}
	return nil
}

// Compute returns the full set of Greeks for the given inputs.
// At or past expiry every sensitivity is zero except a degenerate delta
// of 0 or 1 (sign flipped for puts) depending on moneyness.
func Compute(in Inputs) (*Greeks, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.TimeToExpiry <= 0 {
		return expiredGreeks(in), nil
	}

	S, K, T := in.Spot, in.Strike, in.TimeToExpiry
	r, sigma := in.RiskFreeRate, in.Volatility
	sqrtT := math.Sqrt(T)

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	g := &Greeks{
		Gamma:             normPDF(d1) / (S * sigma * sqrtT),
		Vega:              S * normPDF(d1) * sqrtT,
		ImpliedVolatility: sigma,
	}

	discount := math.Exp(-r * T)
	if in.IsCall {
		g.Price = S*normCDF(d1) - K*discount*normCDF(d2)
		g.Delta = normCDF(d1)
		g.Theta = -(S*normPDF(d1)*sigma)/(2*sqrtT) - r*K*discount*normCDF(d2)
		g.Rho = K * T * discount * normCDF(d2)
	} else {
		g.Price = K*discount*normCDF(-d2) - S*normCDF(-d1)
		g.Delta = normCDF(d1) - 1
		g.Theta = -(S*normPDF(d1)*sigma)/(2*sqrtT) + r*K*discount*normCDF(-d2)
		g.Rho = -K * T * discount * normCDF(-d2)
	}
	return g, nil
}

// Price returns only the Black-Scholes price
func Price(in Inputs) (float64, error) {
	g, err := Compute(in)
	if err != nil {
		return 0, err
	}
	return g.Price, nil
}

// ImpliedVolatility solves for the volatility that reconciles the model
// with an observed price. Newton-Raphson steps are taken while vega is
// well-conditioned; otherwise the solver falls back to bisection on the
// bracketed volatility range. Hitting the iteration cap is an error, it
// never returns a misleading partial result.
func ImpliedVolatility(in Inputs, targetPrice, initialGuess float64) (float64, error) {
	if in.Spot <= 0 || in.Strike <= 0 {
		return 0, errors.Wrap(errors.ErrInvalidInput, "spot and strike must be positive")
	}
	if targetPrice <= 0 {
		return 0, errors.Wrap(errors.ErrInvalidInput, "target price must be positive")
	}
	if in.TimeToExpiry <= 0 {
		return 0, errors.Wrap(errors.ErrInvalidInput, "option is expired")
	}

	sigma := initialGuess
	if sigma <= 0 {
		sigma = 0.5
	}

	lo, hi := ivMinVol, ivMaxVol
	for i := 0; i < ivMaxIterations; i++ {
		in.Volatility = sigma
		g, err := Compute(in)
		if err != nil {
			return 0, err
		}

		diff := g.Price - targetPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}

		// Maintain the bisection bracket from the sign of the error
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := sigma - diff/g.Vega
		if g.Vega < 1e-12 || next <= lo || next >= hi || math.IsNaN(next) {
			next = (lo + hi) / 2
		}
		sigma = next
	}

	return 0, errors.Wrapf(errors.ErrNoConvergence,
		"implied volatility after %d iterations (target=%g)", ivMaxIterations, targetPrice)
}

func expiredGreeks(in Inputs) *Greeks {
	g := &Greeks{}
	if in.IsCall {
		g.Price = math.Max(in.Spot-in.Strike, 0)
		if in.Spot > in.Strike {
			g.Delta = 1
		}
	} else {
		g.Price = math.Max(in.Strike-in.Spot, 0)
		if in.Spot < in.Strike {
			g.Delta = -1
		}
	}
	return g
}

// normCDF is the standard normal cumulative distribution function
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal probability density function
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

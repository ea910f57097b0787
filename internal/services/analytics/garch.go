package analytics

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"VolCast/internal/domain/errs"
	domsvc "VolCast/internal/domain/service"
)

const (
	backcastDecay   = 0.94
	backcastWindow  = 75
	maxPersistence  = 0.9999
	minObservations = 3
)

// GarchEstimator fits a constant-mean GARCH(1,1) with normal innovations by
// maximum likelihood.
//
//	r_t       = mu + e_t
//	sigma²_t  = omega + alpha*e²_{t-1} + beta*sigma²_{t-1}
//
// The first variance is seeded with an exponentially weighted backcast of the
// squared residuals. Parameters are optimized unconstrained through a
// reparameterization that keeps omega > 0, alpha, beta >= 0 and alpha+beta < 1.
type GarchEstimator struct {
	MaxIterations int
}

func NewGarchEstimator() *GarchEstimator {
	return &GarchEstimator{MaxIterations: 5000}
}

var _ domsvc.VolatilityEstimator = (*GarchEstimator)(nil)

// Estimate returns the fitted conditional volatility aligned with returns.
// A series with fewer than three points or zero variance fails with
// errs.DegenerateInputError.
func (g *GarchEstimator) Estimate(ctx context.Context, returns []float64) (domsvc.VolatilityFit, error) {
	var fit domsvc.VolatilityFit
	if err := ctx.Err(); err != nil {
		return fit, err
	}
	n := len(returns)
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return fit, fmt.Errorf("garch: return %d is not finite", i)
		}
	}
	if n < minObservations {
		return fit, &errs.DegenerateInputError{Reason: "too few returns", N: n}
	}
	mean, variance := stat.MeanVariance(returns, nil)
	if variance == 0 || math.IsNaN(variance) {
		return fit, &errs.DegenerateInputError{Reason: "zero variance", N: n}
	}

	// Work on standardized returns; GARCH(1,1) is scale-equivariant so the
	// fitted parameters are mapped back afterwards.
	scale := math.Sqrt(variance)
	z := make([]float64, n)
	for i, r := range returns {
		z[i] = (r - mean) / scale
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			mu, omega, alpha, beta := unpack(x)
			nll := negLogLik(z, mu, omega, alpha, beta, nil)
			if math.IsNaN(nll) || math.IsInf(nll, 0) {
				return math.MaxFloat64
			}
			return nll
		},
	}
	start := pack(0, 0.1, 0.1, 0.8)
	settings := &optimize.Settings{
		MajorIterations: g.MaxIterations,
		FuncEvaluations: 10 * g.MaxIterations,
	}
	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if result == nil {
		return fit, fmt.Errorf("garch: optimize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fit, err
	}

	mu, omega, alpha, beta := unpack(result.X)
	sigma2 := make([]float64, n)
	nll := negLogLik(z, mu, omega, alpha, beta, sigma2)
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return fit, fmt.Errorf("garch: likelihood did not converge (status %v)", result.Status)
	}

	fit.FittedVol = make([]float64, n)
	for i, s2 := range sigma2 {
		fit.FittedVol[i] = math.Sqrt(s2) * scale
	}
	fit.Mu = mean + mu*scale
	fit.Omega = omega * variance
	fit.Alpha = alpha
	fit.Beta = beta
	// log-likelihood of the original returns differs by the Jacobian of the scaling
	fit.LogLik = -nll - float64(n)*math.Log(scale)
	return fit, nil
}

// negLogLik evaluates the Gaussian negative log-likelihood. When sigma2 is not
// nil the conditional variances are written into it.
func negLogLik(r []float64, mu, omega, alpha, beta float64, sigma2 []float64) float64 {
	bc := backcast(r, mu)
	prevE2, prevS2 := bc, bc
	ll := 0.0
	for t, x := range r {
		s2 := omega + alpha*prevE2 + beta*prevS2
		if s2 <= 0 {
			return math.Inf(1)
		}
		e := x - mu
		ll += math.Log(2*math.Pi) + math.Log(s2) + e*e/s2
		if sigma2 != nil {
			sigma2[t] = s2
		}
		prevE2, prevS2 = e*e, s2
	}
	return 0.5 * ll
}

func backcast(r []float64, mu float64) float64 {
	tau := min(backcastWindow, len(r))
	w, sum, norm := 1.0, 0.0, 0.0
	for i := 0; i < tau; i++ {
		e := r[i] - mu
		sum += w * e * e
		norm += w
		w *= backcastDecay
	}
	return sum / norm
}

// pack maps constrained parameters to the optimizer's unconstrained space.
func pack(mu, omega, alpha, beta float64) []float64 {
	s := (alpha + beta) / maxPersistence
	share := alpha / (alpha + beta)
	return []float64{mu, math.Log(omega), logit(s), logit(share)}
}

func unpack(x []float64) (mu, omega, alpha, beta float64) {
	s := maxPersistence * logistic(x[2])
	share := logistic(x[3])
	return x[0], math.Exp(x[1]), s * share, s * (1 - share)
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

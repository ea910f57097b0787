package analytics

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/errs"
)

// simulateGarch draws a GARCH(1,1) path with a fixed seed.
func simulateGarch(n int, mu, omega, alpha, beta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]float64, n)
	s2 := omega / (1 - alpha - beta)
	prevE := 0.0
	for t := range out {
		s2 = omega + alpha*prevE*prevE + beta*s2
		e := math.Sqrt(s2) * rng.NormFloat64()
		out[t] = mu + e
		prevE = e
	}
	return out
}

func TestGarchDegenerateConstantSeries(t *testing.T) {
	returns := make([]float64, 12)
	for i := range returns {
		returns[i] = 0.004
	}
	fit, err := NewGarchEstimator().Estimate(context.Background(), returns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDegenerate))
	var de *errs.DegenerateInputError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 12, de.N)
	assert.Nil(t, fit.FittedVol, "no zero-vector output")
}

func TestGarchTooFewReturns(t *testing.T) {
	_, err := NewGarchEstimator().Estimate(context.Background(), []float64{0.01, -0.02})
	assert.True(t, errors.Is(err, errs.ErrDegenerate))
}

func TestGarchRejectsMissing(t *testing.T) {
	_, err := NewGarchEstimator().Estimate(context.Background(), []float64{0.01, math.NaN(), 0.02, 0.03})
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrDegenerate))
}

func TestGarchFitSimulated(t *testing.T) {
	returns := simulateGarch(400, 0.001, 2e-6, 0.1, 0.85, 7)
	fit, err := NewGarchEstimator().Estimate(context.Background(), returns)
	require.NoError(t, err)

	require.Len(t, fit.FittedVol, len(returns))
	for i, v := range fit.FittedVol {
		require.False(t, math.IsNaN(v), "vol %d", i)
		require.Greater(t, v, 0.0, "vol %d", i)
	}
	assert.Greater(t, fit.Omega, 0.0)
	assert.GreaterOrEqual(t, fit.Alpha, 0.0)
	assert.GreaterOrEqual(t, fit.Beta, 0.0)
	assert.Less(t, fit.Persistence(), 1.0)
	assert.Greater(t, fit.Persistence(), 0.5)
	assert.False(t, math.IsNaN(fit.LogLik))
}

func TestGarchDeterministic(t *testing.T) {
	returns := simulateGarch(120, 0, 1e-5, 0.08, 0.9, 3)
	a, err := NewGarchEstimator().Estimate(context.Background(), returns)
	require.NoError(t, err)
	b, err := NewGarchEstimator().Estimate(context.Background(), returns)
	require.NoError(t, err)
	assert.Equal(t, a.FittedVol, b.FittedVol)
}

func TestBackcastAndReparameterization(t *testing.T) {
	r := []float64{1, -1, 1, -1}
	w := []float64{1, 0.94, 0.94 * 0.94, 0.94 * 0.94 * 0.94}
	sum := w[0] + w[1] + w[2] + w[3]
	assert.InDelta(t, 1.0, backcast(r, 0), 1e-12)
	assert.InDelta(t, (4*w[0]+0*w[1]+4*w[2]+0*w[3])/sum, backcast(r, -1), 1e-12)

	mu, omega, alpha, beta := unpack(pack(0.2, 0.3, 0.1, 0.8))
	assert.InDelta(t, 0.2, mu, 1e-12)
	assert.InDelta(t, 0.3, omega, 1e-12)
	assert.InDelta(t, 0.1, alpha, 1e-12)
	assert.InDelta(t, 0.8, beta, 1e-12)
}

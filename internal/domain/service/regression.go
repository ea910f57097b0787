package service

import "context"

// Regressor is the capability every regression backend provides. A Regressor
// is fit once; Predict is only valid after a successful Fit.
type Regressor interface {
	Fit(ctx context.Context, X [][]float64, y []float64) error
	Predict(x []float64) (float64, error)
}

// RegressorFactory builds a fresh, unfitted regressor. Every call returns an
// independent model seeded identically so that refits are reproducible.
type RegressorFactory interface {
	New() Regressor
	Name() string
}

// VolatilityFit is the outcome of a conditional-volatility fit.
type VolatilityFit struct {
	FittedVol []float64 // aligned with the input returns
	Mu        float64
	Omega     float64
	Alpha     float64
	Beta      float64
	LogLik    float64
}

// Persistence is alpha+beta.
func (f VolatilityFit) Persistence() float64 { return f.Alpha + f.Beta }

// VolatilityEstimator fits a conditional-volatility model over a return series
// with no missing values.
type VolatilityEstimator interface {
	Estimate(ctx context.Context, returns []float64) (VolatilityFit, error)
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	domsvc "VolCast/internal/domain/service"
)

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("regressor not fitted")

// GBTParams configures the gradient-boosted tree regressor.
type GBTParams struct {
	NEstimators     int     `yaml:"n_estimators" default:"1200" validate:"min=1"`
	LearningRate    float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0,lte=1"`
	MaxDepth        int     `yaml:"max_depth" default:"3" validate:"min=1"`
	MinChildWeight  float64 `yaml:"min_child_weight" default:"5" validate:"gte=0"`
	Subsample       float64 `yaml:"subsample" default:"0.8" validate:"gt=0,lte=1"`
	ColsampleByTree float64 `yaml:"colsample_bytree" default:"1" validate:"gt=0,lte=1"`
	Lambda          float64 `yaml:"lambda" default:"1" validate:"gte=0"`
	Seed            uint64  `yaml:"seed" default:"42"`
}

// DefaultGBTParams mirrors the tuned parameters of the volatility model.
func DefaultGBTParams() GBTParams {
	return GBTParams{
		NEstimators:     1200,
		LearningRate:    0.01,
		MaxDepth:        3,
		MinChildWeight:  5,
		Subsample:       0.8,
		ColsampleByTree: 1,
		Lambda:          1,
		Seed:            42,
	}
}

// GradientBoosting fits an additive ensemble of shallow trees to squared-error
// residuals, starting from the target mean. Each round samples rows without
// replacement (Bernoulli with probability Subsample) and columns per tree from
// a PCG stream seeded with Seed, so refits on identical data are bit-identical.
type GradientBoosting struct {
	params    GBTParams
	base      float64
	trees     []*regTree
	nFeatures int
}

func NewGradientBoosting(p GBTParams) *GradientBoosting {
	return &GradientBoosting{params: p}
}

var _ domsvc.Regressor = (*GradientBoosting)(nil)

func (g *GradientBoosting) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("gbt fit: %d rows for %d targets", len(X), len(y))
	}
	if err := checkTargets(y); err != nil {
		return fmt.Errorf("gbt fit: %w", err)
	}
	d, err := newDataset(X)
	if err != nil {
		return fmt.Errorf("gbt fit: %w", err)
	}

	n, nf := d.rows(), d.features()
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	rng := rand.New(rand.NewPCG(g.params.Seed, g.params.Seed^0x9e3779b97f4a7c15))
	tp := treeParams{maxDepth: g.params.MaxDepth, minChildWeight: g.params.MinChildWeight, lambda: g.params.Lambda}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, n)
	weight := make([]float64, n)
	allFeats := make([]int, nf)
	for f := range allFeats {
		allFeats[f] = f
	}
	ncols := max(1, int(math.Round(g.params.ColsampleByTree*float64(nf))))

	trees := make([]*regTree, 0, g.params.NEstimators)
	for t := 0; t < g.params.NEstimators; t++ {
		if t%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		sampled := 0
		for i := range weight {
			weight[i] = 0
			if g.params.Subsample >= 1 || rng.Float64() < g.params.Subsample {
				weight[i] = 1
				sampled++
			}
		}
		if sampled == 0 {
			weight[rng.IntN(n)] = 1
		}
		feats := allFeats
		if ncols < nf {
			perm := rng.Perm(nf)[:ncols]
			feats = perm
		}

		tree := growTree(d, resid, weight, feats, tp)
		for i := range pred {
			pred[i] += g.params.LearningRate * tree.predict(X[i])
		}
		trees = append(trees, tree)
	}

	g.base, g.trees, g.nFeatures = base, trees, nf
	return nil
}

func (g *GradientBoosting) Predict(x []float64) (float64, error) {
	if g.trees == nil {
		return 0, ErrNotFitted
	}
	if len(x) != g.nFeatures {
		return 0, fmt.Errorf("gbt predict: got %d features, want %d", len(x), g.nFeatures)
	}
	out := g.base
	for _, t := range g.trees {
		out += g.params.LearningRate * t.predict(x)
	}
	return out, nil
}

func checkTargets(y []float64) error {
	if len(y) == 0 {
		return errors.New("no targets")
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("target %d is not finite", i)
		}
	}
	return nil
}

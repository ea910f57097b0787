package analytics

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	domsvc "VolCast/internal/domain/service"
)

// ForestParams configures the bagged regression forest.
type ForestParams struct {
	NEstimators    int    `yaml:"n_estimators" default:"200" validate:"min=1"`
	MaxDepth       int    `yaml:"max_depth" default:"0" validate:"gte=0"`
	MinSamplesLeaf int    `yaml:"min_samples_leaf" default:"1" validate:"min=1"`
	Seed           uint64 `yaml:"seed" default:"42"`
	Workers        int    `yaml:"workers" default:"0" validate:"gte=0"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{NEstimators: 200, MinSamplesLeaf: 1, Seed: 42}
}

// RandomForest averages fully grown trees fit on bootstrap resamples. Trees are
// built concurrently inside one Fit call; tree k draws its bootstrap from its
// own PCG stream (Seed, k) so the result does not depend on scheduling.
type RandomForest struct {
	params    ForestParams
	trees     []*regTree
	nFeatures int
}

func NewRandomForest(p ForestParams) *RandomForest {
	return &RandomForest{params: p}
}

var _ domsvc.Regressor = (*RandomForest)(nil)

func (f *RandomForest) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("forest fit: %d rows for %d targets", len(X), len(y))
	}
	if err := checkTargets(y); err != nil {
		return fmt.Errorf("forest fit: %w", err)
	}
	d, err := newDataset(X)
	if err != nil {
		return fmt.Errorf("forest fit: %w", err)
	}

	n, nf := d.rows(), d.features()
	feats := make([]int, nf)
	for i := range feats {
		feats[i] = i
	}
	tp := treeParams{maxDepth: f.params.MaxDepth, minChildWeight: float64(f.params.MinSamplesLeaf)}
	workers := f.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*regTree, f.params.NEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.params.Seed, uint64(k)))
			weight := make([]float64, n)
			for range n {
				weight[rng.IntN(n)]++
			}
			trees[k] = growTree(d, y, weight, feats, tp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees, f.nFeatures = trees, nf
	return nil
}

func (f *RandomForest) Predict(x []float64) (float64, error) {
	if f.trees == nil {
		return 0, ErrNotFitted
	}
	if len(x) != f.nFeatures {
		return 0, fmt.Errorf("forest predict: got %d features, want %d", len(x), f.nFeatures)
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees)), nil
}

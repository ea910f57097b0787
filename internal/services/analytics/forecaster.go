package analytics

import (
	"context"
	"fmt"
	"time"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	"VolCast/internal/domain/repository"
	domsvc "VolCast/internal/domain/service"
	"VolCast/pkg/logger"
)

// DefaultModelFeatures is the regressor input used when none is configured.
var DefaultModelFeatures = []string{
	models.ColTargetVol2WLag1,
	models.ColTargetVol2WLag2,
	models.ColTargetVol2WLag3,
	models.Horizon1W.Column(),
	models.ColReturnLag1,
	models.ColGarchVol,
	models.ColVariationPct,
}

// ForecastOptions selects the target column and the regressor inputs. An
// empty Features list uses every column except the target.
type ForecastOptions struct {
	Target   string
	Features []string
}

// ForecastResult is the filled table plus the predictions in fill order.
type ForecastResult struct {
	Table        *models.Table
	Predictions  []models.Prediction
	KnownTargets int
}

// Forecaster fills every missing target cell in chronological order, refitting
// a fresh regressor on an expanding training set before each prediction.
// Steps are strictly sequential: step k+1 trains on the prediction of step k.
type Forecaster struct {
	factory domsvc.RegressorFactory
	log     *logger.Logger
	metrics repository.Metrics
}

func NewForecaster(factory domsvc.RegressorFactory, log *logger.Logger, metrics repository.Metrics) *Forecaster {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &Forecaster{factory: factory, log: log, metrics: metrics}
}

// Backend names the regression backend in use.
func (f *Forecaster) Backend() string { return f.factory.Name() }

// TargetLagColumn names the k-th lag of target.
func TargetLagColumn(target string, k int) string {
	return fmt.Sprintf("%s_lag_%d", target, k)
}

// Forecast returns a filled copy of table; the input is not modified.
func (f *Forecaster) Forecast(ctx context.Context, table *models.Table, opts ForecastOptions) (*ForecastResult, error) {
	target := opts.Target
	if target == "" {
		target = models.ColTargetVol2W
	}
	if !table.HasColumn(target) {
		return nil, &errs.SchemaError{Source: "feature table", Column: target}
	}
	features := opts.Features
	if len(features) == 0 {
		for _, c := range table.Columns() {
			if c != target {
				features = append(features, c)
			}
		}
	}
	for _, c := range features {
		if c == target {
			return nil, fmt.Errorf("forecast: target %q listed as a feature", target)
		}
		if !table.HasColumn(c) {
			return nil, &errs.SchemaError{Source: "feature table", Column: c}
		}
	}

	out := table.Clone()
	var X [][]float64
	var y []float64
	var unknown []int
	for i := 0; i < out.Len(); i++ {
		v, err := out.Value(i, target)
		if err != nil {
			return nil, err
		}
		if models.IsMissing(v) {
			unknown = append(unknown, i)
			continue
		}
		x, err := out.Vector(i, features)
		if err != nil {
			return nil, err
		}
		X = append(X, x)
		y = append(y, v)
	}
	known := len(y)
	if len(unknown) > 0 && known == 0 {
		return nil, fmt.Errorf("forecast: no known %s values to train on", target)
	}

	f.log.Info("forecast started",
		logger.String("backend", f.factory.Name()),
		logger.Int("known", known),
		logger.Int("unknown", len(unknown)),
		logger.Int("features", len(features)))

	predictions := make([]models.Prediction, 0, len(unknown))
	for step, i := range unknown {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("forecast step %d: %w", step, err)
		}
		started := time.Now()

		model := f.factory.New()
		if err := model.Fit(ctx, X, y); err != nil {
			return nil, fmt.Errorf("forecast step %d: fit: %w", step, err)
		}
		x, err := out.Vector(i, features)
		if err != nil {
			return nil, err
		}
		pred, err := model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("forecast step %d: predict: %w", step, err)
		}
		if err := out.SetValue(i, target, pred); err != nil {
			return nil, err
		}
		if err := propagateLags(out, i, target, pred); err != nil {
			return nil, err
		}

		X = append(X, x)
		y = append(y, pred)

		date, _ := out.Date(i)
		predictions = append(predictions, models.Prediction{Date: date, Value: pred})
		f.metrics.RecordForecastStep(f.factory.Name())
		f.log.Debug("forecast step",
			logger.Int("step", step),
			logger.Int("row", i),
			logger.Date("date", date),
			logger.Float64("prediction", pred),
			logger.Int("train_size", len(y)-1),
			logger.Duration("took", time.Since(started)))
	}

	if n := len(predictions); n > 0 {
		f.metrics.RecordLastForecast(predictions[n-1].Value)
	}
	return &ForecastResult{Table: out, Predictions: predictions, KnownTargets: known}, nil
}

// propagateLags writes the target lags of row i+1 from the prediction at row i.
// Lag k references row i+1-k; when that row is before the first row the
// prediction itself is used.
func propagateLags(t *models.Table, i int, target string, pred float64) error {
	next := i + 1
	if !t.InRange(next) {
		return nil
	}
	for k := 1; k <= 3; k++ {
		col := TargetLagColumn(target, k)
		if !t.HasColumn(col) {
			continue
		}
		v := pred
		if src := i + 1 - k; src != i && t.InRange(src) {
			prev, err := t.Value(src, target)
			if err != nil {
				return err
			}
			if models.Defined(prev) {
				v = prev
			}
		}
		if err := t.SetValue(next, col, v); err != nil {
			return err
		}
	}
	return nil
}

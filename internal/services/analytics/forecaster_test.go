package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	"VolCast/internal/services/features"
	"VolCast/pkg/logger"
)

type countingMetrics struct {
	steps int
	last  float64
}

func (m *countingMetrics) RecordRun(string)                  {}
func (m *countingMetrics) RecordStage(string, time.Duration) {}
func (m *countingMetrics) RecordForecastStep(string)         { m.steps++ }
func (m *countingMetrics) RecordLastForecast(v float64)      { m.last = v }
func (m *countingMetrics) RecordWarning(string)              {}

func fastGBT() GBTParams {
	p := DefaultGBTParams()
	p.NEstimators = 60
	p.LearningRate = 0.1
	p.MinChildWeight = 1
	return p
}

// forecastTable builds n rows whose last `unknown` targets are missing, with
// target lags derived from the target column and one exogenous feature.
func forecastTable(t *testing.T, n, unknown int) *models.Table {
	t.Helper()
	cols := []string{"x", models.ColTargetVol2WLag1, models.ColTargetVol2WLag2, models.ColTargetVol2WLag3, models.ColTargetVol2W}
	dates := make([]time.Time, n)
	target := make([]float64, n)
	for i := range dates {
		dates[i] = time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
		target[i] = 0.01 + 0.005*math.Sin(float64(i)/3)
		if i >= n-unknown {
			target[i] = math.NaN()
		}
	}
	tbl := models.NewTable(cols, dates)
	lag1, lag2, lag3 := features.Shift(target, 1), features.Shift(target, 2), features.Shift(target, 3)
	for i := range dates {
		require.NoError(t, tbl.SetValue(i, "x", float64(i%5)))
		require.NoError(t, tbl.SetValue(i, models.ColTargetVol2W, target[i]))
		require.NoError(t, tbl.SetValue(i, models.ColTargetVol2WLag1, lag1[i]))
		require.NoError(t, tbl.SetValue(i, models.ColTargetVol2WLag2, lag2[i]))
		require.NoError(t, tbl.SetValue(i, models.ColTargetVol2WLag3, lag3[i]))
	}
	return tbl
}

func column(t *testing.T, tbl *models.Table, col string) []float64 {
	t.Helper()
	out, err := tbl.Column(col)
	require.NoError(t, err)
	return out
}

func TestForecastMissingTargetColumn(t *testing.T) {
	tbl := models.NewTable([]string{"x"}, []time.Time{time.Now()})
	f := NewForecaster(gbtFactory{p: fastGBT()}, logger.Nop(), nil)

	_, err := f.Forecast(context.Background(), tbl, ForecastOptions{Target: models.ColTargetVol2W})
	var se *errs.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ColTargetVol2W, se.Column)
}

func TestForecastMissingFeatureColumn(t *testing.T) {
	tbl := forecastTable(t, 10, 2)
	f := NewForecaster(gbtFactory{p: fastGBT()}, logger.Nop(), nil)
	_, err := f.Forecast(context.Background(), tbl, ForecastOptions{Features: []string{"nope"}})
	assert.True(t, errors.Is(err, errs.ErrSchema))
}

func TestForecastFillsUnknownAndPropagatesLags(t *testing.T) {
	const n, unknown = 30, 6
	tbl := forecastTable(t, n, unknown)
	before := column(t, tbl, models.ColTargetVol2W)
	m := &countingMetrics{}

	res, err := NewForecaster(gbtFactory{p: fastGBT()}, logger.Nop(), m).
		Forecast(context.Background(), tbl, ForecastOptions{})
	require.NoError(t, err)

	require.Len(t, res.Predictions, unknown)
	assert.Equal(t, n-unknown, res.KnownTargets)
	assert.Equal(t, unknown, m.steps)
	assert.Equal(t, res.Predictions[unknown-1].Value, m.last)

	after := column(t, res.Table, models.ColTargetVol2W)
	lag1 := column(t, res.Table, models.ColTargetVol2WLag1)
	lag2 := column(t, res.Table, models.ColTargetVol2WLag2)
	lag3 := column(t, res.Table, models.ColTargetVol2WLag3)
	for i := 0; i < n; i++ {
		if i < n-unknown {
			assert.Equal(t, before[i], after[i], "known row %d unchanged", i)
			continue
		}
		require.False(t, math.IsNaN(after[i]), "row %d filled", i)
		assert.Equal(t, res.Predictions[i-(n-unknown)].Value, after[i])
		if i+1 < n {
			assert.Equal(t, after[i], lag1[i+1], "lag1 of row %d", i+1)
			assert.Equal(t, after[i-1], lag2[i+1], "lag2 of row %d", i+1)
			assert.Equal(t, after[i-2], lag3[i+1], "lag3 of row %d", i+1)
		}
	}

	assert.True(t, math.IsNaN(column(t, tbl, models.ColTargetVol2W)[n-1]), "input table untouched")
}

func TestForecastDeterministic(t *testing.T) {
	tbl := forecastTable(t, 25, 5)
	run := func(factory gbtFactory) []float64 {
		res, err := NewForecaster(factory, logger.Nop(), nil).
			Forecast(context.Background(), tbl, ForecastOptions{Features: []string{"x", models.ColTargetVol2WLag1}})
		require.NoError(t, err)
		return column(t, res.Table, models.ColTargetVol2W)
	}
	a := run(gbtFactory{p: fastGBT()})
	b := run(gbtFactory{p: fastGBT()})
	for i := range a {
		if math.IsNaN(a[i]) {
			t.Fatalf("row %d left unfilled", i)
		}
		assert.Equal(t, math.Float64bits(a[i]), math.Float64bits(b[i]), "row %d", i)
	}
}

func TestForecastLagFallbackAtStart(t *testing.T) {
	tbl := forecastTable(t, 8, 0)
	require.NoError(t, tbl.SetValue(0, models.ColTargetVol2W, math.NaN()))

	res, err := NewForecaster(forestFactory{p: DefaultForestParams()}, logger.Nop(), nil).
		Forecast(context.Background(), tbl, ForecastOptions{})
	require.NoError(t, err)
	require.Len(t, res.Predictions, 1)

	pred := res.Predictions[0].Value
	lag1 := column(t, res.Table, models.ColTargetVol2WLag1)
	lag2 := column(t, res.Table, models.ColTargetVol2WLag2)
	lag3 := column(t, res.Table, models.ColTargetVol2WLag3)
	assert.Equal(t, pred, lag1[1])
	assert.Equal(t, pred, lag2[1], "row -1 does not exist")
	assert.Equal(t, pred, lag3[1], "row -2 does not exist")
}

func TestForecastCancelled(t *testing.T) {
	tbl := forecastTable(t, 12, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewForecaster(gbtFactory{p: fastGBT()}, logger.Nop(), nil).Forecast(ctx, tbl, ForecastOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestForecastNothingToTrainOn(t *testing.T) {
	tbl := forecastTable(t, 4, 4)
	_, err := NewForecaster(gbtFactory{p: fastGBT()}, logger.Nop(), nil).Forecast(context.Background(), tbl, ForecastOptions{})
	assert.Error(t, err)
}

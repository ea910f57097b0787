package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/internal/repository"
	"VolCast/internal/services/analytics"
	"VolCast/internal/services/features"
	"VolCast/pkg/logger"
)

var fixtureStart = time.Date(2022, 1, 7, 0, 0, 0, 0, time.UTC)

func weekDate(i int) time.Time { return fixtureStart.AddDate(0, 0, 7*i) }

// writeFixtures writes 100 weekly index rows and a fund report covering the
// last 95 of those dates. perf1w returns the weekly performance of fund row k.
func writeFixtures(t *testing.T, dir string, perf1w func(k int) float64) PipelinePaths {
	t.Helper()
	var idx strings.Builder
	idx.WriteString("Date,weekly_mean,Variation %\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&idx, "%s,%.2f,\n", weekDate(i).Format("2006-01-02"), 11000+150*math.Sin(float64(i)/5))
	}

	var fund strings.Builder
	fund.WriteString("Date,Fonds,Valeur Liquidative,Performances glissantes 1 semaine,Performances glissantes 1 an\n")
	for k := 0; k < 95; k++ {
		p := strings.Replace(fmt.Sprintf("%.3f%%", perf1w(k)), ".", ",", 1)
		fmt.Fprintf(&fund, "%s,DIVERSIFIE,\"%s\",\"%s\",n/a\n",
			weekDate(k+5).Format("02/01/2006"),
			strings.Replace(fmt.Sprintf("%.2f", 1000+float64(k)), ".", ",", 1),
			p)
	}

	paths := PipelinePaths{
		HistoricalIndex: filepath.Join(dir, "index.csv"),
		WeeklyIndex:     filepath.Join(dir, "weekly.csv"),
		Fund:            filepath.Join(dir, "fund.csv"),
		CombinedIndex:   filepath.Join(dir, "out", "combined.csv"),
		CleanedFund:     filepath.Join(dir, "out", "fund.csv"),
		Features:        filepath.Join(dir, "out", "features.csv"),
		Forecast:        filepath.Join(dir, "out", "forecast.csv"),
	}
	require.NoError(t, os.WriteFile(paths.HistoricalIndex, []byte(idx.String()), 0o644))
	require.NoError(t, os.WriteFile(paths.Fund, []byte(fund.String()), 0o644))
	return paths
}

func wavyReturns(k int) float64 {
	return 1.2*math.Sin(float64(k)*0.7) + 0.4*math.Cos(float64(k)*1.9)
}

func testPipeline(paths PipelinePaths, metrics domrepo.Metrics) *Pipeline {
	gbt := analytics.DefaultGBTParams()
	gbt.NEstimators = 40
	gbt.LearningRate = 0.1
	reg := analytics.NewRegistry(gbt, analytics.DefaultForestParams())
	factory := analytics.SelectBackend(reg, analytics.BackendGBT, logger.Nop())
	opts := PipelineOptions{
		Paths:            paths,
		WeeklyOffsetDays: features.DefaultWeeklyOffsetDays,
		IndexSchema:      features.DefaultIndexSchema(),
		FundSchema:       features.DefaultFundSchema(),
		Forecast: analytics.ForecastOptions{
			Target:   models.ColTargetVol2W,
			Features: analytics.DefaultModelFeatures,
		},
	}
	return NewPipeline(opts,
		repository.NewMultiSource(repository.CSVSource{}, repository.XLSXSource{}),
		repository.CSVArtifact{},
		analytics.NewGarchEstimator(),
		analytics.NewForecaster(factory, nil, nil),
		metrics, nil)
}

type countingMetrics struct {
	runs     map[string]int
	stages   map[string]int
	warnings map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{runs: map[string]int{}, stages: map[string]int{}, warnings: map[string]int{}}
}

func (m *countingMetrics) RecordRun(status string)                  { m.runs[status]++ }
func (m *countingMetrics) RecordStage(stage string, _ time.Duration) { m.stages[stage]++ }
func (m *countingMetrics) RecordForecastStep(string)                {}
func (m *countingMetrics) RecordLastForecast(float64)               {}
func (m *countingMetrics) RecordWarning(kind string)                { m.warnings[kind]++ }

type recordingPublisher struct{ reports []*models.RunReport }

func (p *recordingPublisher) PublishRun(_ context.Context, r *models.RunReport) error {
	p.reports = append(p.reports, r)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

type failingStore struct{ calls int }

func (s *failingStore) Init(context.Context) error { return nil }
func (s *failingStore) StoreForecast(context.Context, *models.RunReport, *models.Table) error {
	s.calls++
	return errors.New("clickhouse down")
}
func (s *failingStore) Health(context.Context) error { return nil }
func (s *failingStore) Close() error                 { return nil }

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, wavyReturns)
	metrics := newCountingMetrics()
	pub := &recordingPublisher{}
	store := &failingStore{}
	p := testPipeline(paths, metrics).WithPublisher(pub).WithStore(store)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, report.Status)
	assert.Equal(t, 95, report.Rows)
	assert.Equal(t, 93, report.KnownTargets)
	require.Len(t, report.Predictions, 2)
	assert.Equal(t, weekDate(99), report.LatestDate)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, analytics.BackendGBT, report.Backend)
	assert.Equal(t, 95, report.Warnings, "every 1-year cell is unparsable")

	ctx := context.Background()
	built, err := repository.CSVArtifact{}.Read(ctx, paths.Features)
	require.NoError(t, err)
	final, err := repository.CSVArtifact{}.Read(ctx, paths.Forecast)
	require.NoError(t, err)
	require.Equal(t, 95, final.Len())
	assert.ElementsMatch(t, models.FeatureColumns(), final.Columns())

	before, err := built.Column(models.ColTargetVol2W)
	require.NoError(t, err)
	after, err := final.Column(models.ColTargetVol2W)
	require.NoError(t, err)
	for i := 0; i < 93; i++ {
		assert.Equal(t, before[i], after[i], "row %d", i)
	}
	for i := 93; i < 95; i++ {
		assert.True(t, math.IsNaN(before[i]))
		assert.False(t, math.IsNaN(after[i]), "row %d filled", i)
	}
	lag1, err := final.Value(94, models.ColTargetVol2WLag1)
	require.NoError(t, err)
	assert.Equal(t, after[93], lag1)

	for _, path := range []string{paths.CombinedIndex, paths.CleanedFund} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	assert.Equal(t, 1, metrics.runs[string(models.RunSucceeded)])
	assert.Equal(t, 1, metrics.stages[StageForecast])
	assert.Equal(t, 95, metrics.warnings["parse"])
	assert.Equal(t, 1, metrics.warnings["sink_store"])
	assert.Equal(t, 1, store.calls)
	require.Len(t, pub.reports, 1)
	assert.Equal(t, report.RunID, pub.reports[0].RunID)
}

func TestPipelineWeeklyOverridesHistorical(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, wavyReturns)
	weekly := "Date,weekly_mean,Variation %\n" + weekDate(99).AddDate(0, 0, 2).Format("2006-01-02") + ",12345.5,\n"
	require.NoError(t, os.WriteFile(paths.WeeklyIndex, []byte(weekly), 0o644))

	_, err := testPipeline(paths, nil).Run(context.Background())
	require.NoError(t, err)

	combined, err := repository.CSVArtifact{}.Read(context.Background(), paths.CombinedIndex)
	require.NoError(t, err)
	require.Equal(t, 100, combined.Len())
	v, err := combined.Value(99, models.ColIndexValue)
	require.NoError(t, err)
	assert.Equal(t, 12345.5, v)
	first, err := combined.Value(0, models.ColVariationPct)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(first))
}

func TestPipelineWeeklySourceDegrades(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, path string)
		warnings int
	}{
		{
			name: "zero byte file",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, nil, 0o644))
			},
		},
		{
			name: "header only",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("Date,weekly_mean,Variation %\n"), 0o644))
			},
		},
		{
			name: "path is a directory",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.Mkdir(path, 0o755))
			},
			warnings: 1,
		},
		{
			name: "foreign columns",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("Date,close\n2024-01-05,1\n"), 0o644))
			},
			warnings: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			paths := writeFixtures(t, dir, wavyReturns)
			tt.setup(t, paths.WeeklyIndex)
			metrics := newCountingMetrics()

			report, err := testPipeline(paths, metrics).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, models.RunSucceeded, report.Status)
			assert.Equal(t, 95, report.Rows)
			assert.Equal(t, 95+tt.warnings, report.Warnings)
			assert.Equal(t, tt.warnings, metrics.warnings["weekly_source"])

			combined, err := repository.CSVArtifact{}.Read(context.Background(), paths.CombinedIndex)
			require.NoError(t, err)
			assert.Equal(t, 100, combined.Len())
			final, err := repository.CSVArtifact{}.Read(context.Background(), paths.Forecast)
			require.NoError(t, err)
			assert.Equal(t, 95, final.Len())
		})
	}
}

func TestPipelineMissingRequiredSource(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, wavyReturns)
	require.NoError(t, os.Remove(paths.Fund))
	metrics := newCountingMetrics()

	report, err := testPipeline(paths, metrics).Run(context.Background())
	require.Error(t, err)
	var missing *errs.MissingRequiredSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "fund", missing.Source)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, models.RunFailed, report.Status)
	assert.Equal(t, "MISSING_REQUIRED_SOURCE", report.ErrorCode)
	assert.Equal(t, 1, metrics.runs[string(models.RunFailed)])

	_, statErr := os.Stat(paths.Forecast)
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestPipelineDegenerateReturns(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, func(int) float64 { return 0.5 })

	report, err := testPipeline(paths, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDegenerate))
	assert.Equal(t, "DEGENERATE_INPUT", report.ErrorCode)
	assert.True(t, strings.HasPrefix(err.Error(), StageGarch+":"))
}

func TestPipelineSchemaError(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, wavyReturns)
	require.NoError(t, os.WriteFile(paths.HistoricalIndex, []byte("Date,close\n2024-01-05,1\n"), 0o644))

	report, err := testPipeline(paths, nil).Run(context.Background())
	var schema *errs.SchemaError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, "weekly_mean", schema.Column)
	assert.Equal(t, "SCHEMA", report.ErrorCode)
}

func TestPipelineDeadline(t *testing.T) {
	dir := t.TempDir()
	paths := writeFixtures(t, dir, wavyReturns)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	report, err := testPipeline(paths, nil).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, models.RunTimedOut, report.Status)
	_, statErr := os.Stat(paths.Forecast)
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
}

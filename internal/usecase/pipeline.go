package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	domsvc "VolCast/internal/domain/service"
	"VolCast/internal/services/analytics"
	"VolCast/internal/services/features"
	"VolCast/pkg/logger"
)

// Pipeline stage names, used in logs and the stage duration metric.
const (
	StageLoad     = "load"
	StageAlign    = "align"
	StageClean    = "clean"
	StageFeatures = "features"
	StageGarch    = "garch"
	StageForecast = "forecast"
	StageWrite    = "write"
)

const warnWeeklySource = "weekly_source"

// PipelinePaths locates the inputs and artifacts of a run. Empty optional
// paths disable the corresponding source or artifact.
type PipelinePaths struct {
	HistoricalIndex string
	WeeklyIndex     string // optional
	Fund            string
	CombinedIndex   string // optional
	CleanedFund     string // optional
	Features        string // optional
	Forecast        string
}

// PipelineOptions holds everything a run needs besides its collaborators.
type PipelineOptions struct {
	Paths            PipelinePaths
	WeeklyOffsetDays int
	IndexSchema      features.IndexSchema
	FundSchema       features.FundSchema
	Forecast         analytics.ForecastOptions
	SinkTimeout      time.Duration
}

// Pipeline runs the batch transform: load, align, clean, join, build features,
// fit volatility, forecast and write the artifact. Each run loads fresh inputs
// and keeps no state between runs.
type Pipeline struct {
	opts       PipelineOptions
	source     domrepo.TableSource
	writer     domrepo.ArtifactWriter
	vol        domsvc.VolatilityEstimator
	forecaster *analytics.Forecaster
	store      domrepo.ForecastStore // optional
	publisher  domrepo.RunPublisher  // optional
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func NewPipeline(
	opts PipelineOptions,
	source domrepo.TableSource,
	writer domrepo.ArtifactWriter,
	vol domsvc.VolatilityEstimator,
	forecaster *analytics.Forecaster,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Pipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	return &Pipeline{
		opts:       opts,
		source:     source,
		writer:     writer,
		vol:        vol,
		forecaster: forecaster,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// WithStore attaches the optional ClickHouse sink.
func (p *Pipeline) WithStore(s domrepo.ForecastStore) *Pipeline {
	p.store = s
	return p
}

// WithPublisher attaches the optional run-event sink.
func (p *Pipeline) WithPublisher(pub domrepo.RunPublisher) *Pipeline {
	p.publisher = pub
	return p
}

type inputs struct {
	historical *models.RawTable
	weekly     *models.RawTable // nil when the weekly source is absent
	fund       *models.RawTable
	// weeklyUnreadable is set when the weekly source existed but could not
	// be read; the run continues on the historical index alone.
	weeklyUnreadable bool
}

// Run executes one pipeline run. The returned report is never nil; on failure
// it carries the status and taxonomy code and err is the cause.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
		Backend:   p.forecaster.Backend(),
		Artifact:  p.opts.Paths.Forecast,
	}
	log := p.log.With(logger.String("run_id", report.RunID))
	log.Info("pipeline run started", logger.String("backend", report.Backend))

	result, err := p.run(ctx, log, report)
	report.FinishedAt = p.now().UTC()
	if err != nil {
		report.Status = models.RunFailed
		if errors.Is(err, context.DeadlineExceeded) {
			report.Status = models.RunTimedOut
		}
		report.Error = err.Error()
		report.ErrorCode = errs.Code(err)
		p.metrics.RecordRun(string(report.Status))
		return report, err
	}

	report.Status = models.RunSucceeded
	p.metrics.RecordRun(string(report.Status))
	log.Info("pipeline run finished",
		logger.Int("rows", report.Rows),
		logger.Int("predictions", len(report.Predictions)),
		logger.Date("latest_date", report.LatestDate),
		logger.Duration("took", report.Duration()))
	p.sink(ctx, log, report, result.Table)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, log *logger.Logger, report *models.RunReport) (*analytics.ForecastResult, error) {
	var in inputs
	if err := p.stage(log, StageLoad, func() error {
		var err error
		in, err = p.load(ctx, log)
		return err
	}); err != nil {
		return nil, err
	}

	var series models.Series
	if err := p.stage(log, StageAlign, func() error {
		var err error
		series, err = p.align(ctx, log, in, report)
		return err
	}); err != nil {
		return nil, err
	}

	var funds []models.FundRecord
	if err := p.stage(log, StageClean, func() error {
		var warnings []errs.ParseWarning
		var err error
		funds, warnings, err = features.NewCleaner(p.opts.FundSchema).Clean(in.fund)
		if err != nil {
			return err
		}
		p.warn(log, report, warnings)
		log.Info("fund cleaned", logger.Int("rows", len(funds)), logger.Int("warnings", len(warnings)))
		return p.writeOptional(ctx, p.opts.Paths.CleanedFund, models.FundTable(funds))
	}); err != nil {
		return nil, err
	}

	var rows []models.FeatureRow
	if err := p.stage(log, StageFeatures, func() error {
		joined := features.Join(series, funds)
		rows = features.BuildFeatures(joined)
		log.Info("features built", logger.Int("joined", len(joined)), logger.Int("rows", len(rows)))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, StageGarch, func() error {
		returns, positions := features.DefinedReturns(rows)
		fit, err := p.vol.Estimate(ctx, returns)
		if err != nil {
			return err
		}
		log.Info("volatility fitted",
			logger.Int("returns", len(returns)),
			logger.Float64("omega", fit.Omega),
			logger.Float64("alpha", fit.Alpha),
			logger.Float64("beta", fit.Beta),
			logger.Float64("persistence", fit.Persistence()),
			logger.Float64("loglik", fit.LogLik))
		if err := features.AttachVolatility(rows, positions, fit.FittedVol); err != nil {
			return err
		}
		return p.writeOptional(ctx, p.opts.Paths.Features, models.FeatureTable(rows))
	}); err != nil {
		return nil, err
	}

	var result *analytics.ForecastResult
	if err := p.stage(log, StageForecast, func() error {
		var err error
		result, err = p.forecaster.Forecast(ctx, models.FeatureTable(rows), p.opts.Forecast)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, StageWrite, func() error {
		if p.opts.Paths.Forecast == "" {
			return errors.New("forecast artifact path is not configured")
		}
		return p.writer.Write(ctx, p.opts.Paths.Forecast, result.Table)
	}); err != nil {
		return nil, err
	}

	report.Rows = result.Table.Len()
	report.KnownTargets = result.KnownTargets
	report.Predictions = result.Predictions
	if n := result.Table.Len(); n > 0 {
		report.LatestDate, _ = result.Table.Date(n - 1)
	}
	return result, nil
}

// stage times fn, records the duration and prefixes its error with the stage name.
func (p *Pipeline) stage(log *logger.Logger, name string, fn func() error) error {
	start := time.Now()
	log.Debug("stage started", logger.String("stage", name))
	err := fn()
	took := time.Since(start)
	p.metrics.RecordStage(name, took)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug("stage finished", logger.String("stage", name), logger.Duration("took", took))
	return nil
}

// load reads the three sources concurrently. The historical index and fund
// files are required; the weekly file is optional.
func (p *Pipeline) load(ctx context.Context, log *logger.Logger) (inputs, error) {
	var in inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.historical, err = p.readRequired(gctx, "historical index", p.opts.Paths.HistoricalIndex)
		return err
	})
	g.Go(func() error {
		var err error
		in.fund, err = p.readRequired(gctx, "fund", p.opts.Paths.Fund)
		return err
	})
	g.Go(func() error {
		var err error
		in.weekly, in.weeklyUnreadable, err = p.readOptional(gctx, log, p.opts.Paths.WeeklyIndex)
		return err
	})
	if err := g.Wait(); err != nil {
		return inputs{}, err
	}
	log.Info("sources loaded",
		logger.Int("historical_rows", len(in.historical.Records)),
		logger.Int("fund_rows", len(in.fund.Records)),
		logger.Bool("weekly_present", in.weekly != nil))
	return in, nil
}

func (p *Pipeline) readRequired(ctx context.Context, name, path string) (*models.RawTable, error) {
	if path == "" {
		return nil, &errs.MissingRequiredSourceError{Source: name, Path: path, Err: fs.ErrNotExist}
	}
	raw, err := p.source.Read(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &errs.MissingRequiredSourceError{Source: name, Path: path, Err: err}
	}
	return raw, err
}

// readOptional reads the weekly index. Any failure other than cancellation
// degrades to "absent"; the bool reports a source that existed but was unreadable.
func (p *Pipeline) readOptional(ctx context.Context, log *logger.Logger, path string) (*models.RawTable, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	raw, err := p.source.Read(ctx, path)
	switch {
	case err == nil:
		return raw, false, nil
	case ctx.Err() != nil:
		return nil, false, err
	case errors.Is(err, fs.ErrNotExist):
		log.Info("weekly index source absent, using historical only", logger.String("path", path))
		return nil, false, nil
	default:
		p.metrics.RecordWarning(warnWeeklySource)
		log.Warn("weekly index source unreadable, using historical only",
			logger.String("path", path), logger.Error(err))
		return nil, true, nil
	}
}

func (p *Pipeline) align(ctx context.Context, log *logger.Logger, in inputs, report *models.RunReport) (models.Series, error) {
	historical, warnings, err := features.ParseSeries(in.historical, p.opts.IndexSchema)
	if err != nil {
		return nil, err
	}
	p.warn(log, report, warnings)

	if in.weeklyUnreadable {
		report.Warnings++
	}
	var weekly models.Series
	switch {
	case in.weekly == nil:
	case len(in.weekly.Header) == 0 || len(in.weekly.Records) == 0:
		weekly = models.Series{}
	default:
		weekly, warnings, err = features.ParseSeries(in.weekly, p.opts.IndexSchema)
		if err != nil {
			// a weekly file with foreign columns counts as unreadable
			p.metrics.RecordWarning(warnWeeklySource)
			report.Warnings++
			log.Warn("weekly index source unusable, using historical only",
				logger.String("path", in.weekly.Source), logger.Error(err))
			weekly, warnings = nil, nil
		}
		p.warn(log, report, warnings)
		if weekly == nil && err == nil {
			weekly = models.Series{}
		}
	}

	series := features.NewAligner(p.opts.WeeklyOffsetDays).Align(historical, weekly)
	from, to, _ := features.DateSpan(series)
	log.Info("index aligned",
		logger.Int("historical", len(historical)),
		logger.Int("weekly", len(weekly)),
		logger.Int("merged", len(series)),
		logger.Date("from", from),
		logger.Date("to", to))
	return series, p.writeOptional(ctx, p.opts.Paths.CombinedIndex, series.Table())
}

func (p *Pipeline) writeOptional(ctx context.Context, path string, t *models.Table) error {
	if path == "" {
		return nil
	}
	return p.writer.Write(ctx, path, t)
}

func (p *Pipeline) warn(log *logger.Logger, report *models.RunReport, warnings []errs.ParseWarning) {
	for _, w := range warnings {
		p.metrics.RecordWarning("parse")
		log.Warn("cell marked missing",
			logger.String("source", w.Source),
			logger.String("column", w.Column),
			logger.Int("row", w.Row),
			logger.String("raw", w.Raw))
	}
	report.Warnings += len(warnings)
}

// sink hands the finished run to the optional sinks. Their failures are logged
// and never affect the run outcome.
func (p *Pipeline) sink(ctx context.Context, log *logger.Logger, report *models.RunReport, t *models.Table) {
	if p.store == nil && p.publisher == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SinkTimeout)
	defer cancel()

	if p.store != nil {
		if err := p.store.StoreForecast(sctx, report, t); err != nil {
			p.metrics.RecordWarning("sink_store")
			log.Warn("forecast store failed", logger.Error(err))
		}
	}
	if p.publisher != nil {
		if err := p.publisher.PublishRun(sctx, report); err != nil {
			p.metrics.RecordWarning("sink_publish")
			log.Warn("run event publish failed", logger.Error(err))
		}
	}
}

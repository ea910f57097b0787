package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/internal/service/metrics"
	"VolCast/internal/service/ratelimit"
	"VolCast/internal/usecase"
	xhttp "VolCast/pkg/http"
	xlogger "VolCast/pkg/logger"
)

// DatasetQueries is the read side served over HTTP, implemented by usecase.Datasets.
type DatasetQueries interface {
	IndexData(ctx context.Context, p domrepo.Period) ([]models.IndexPoint, error)
	IndexLatest(ctx context.Context) (models.IndexPoint, error)
	IndexStats(ctx context.Context, p domrepo.Period) (models.SeriesStats, error)
	FundData(ctx context.Context, p domrepo.Period) ([]models.FundPoint, error)
	FundLatest(ctx context.Context) (models.FundPoint, error)
	FundStats(ctx context.Context, p domrepo.Period) (models.SeriesStats, error)
	VolatilityData(ctx context.Context, p domrepo.Period) ([]models.VolatilityPoint, error)
	VolatilityForecast(ctx context.Context) (models.ForecastSummary, error)
	DashboardStats(ctx context.Context, p domrepo.Period) (models.DashboardStats, error)
	FinalFundLiquidative(ctx context.Context, p domrepo.Period) ([]models.FinalPoint, error)
	FinalIndexWeeklyMean(ctx context.Context, p domrepo.Period) ([]models.FinalPoint, error)
}

// PipelineRunner triggers a synchronous run, implemented by usecase.Runner.
type PipelineRunner interface {
	Run(ctx context.Context, timeout time.Duration) (*models.RunReport, error)
	Timeout(requested time.Duration) time.Duration
}

// DatasetsEchoHandler serves the pipeline artifacts and the run trigger.
type DatasetsEchoHandler struct {
	logger  *xlogger.Logger
	data    DatasetQueries
	runner  PipelineRunner
	limiter *ratelimit.Limiter
	version string
}

func NewDatasetsEchoHandler(logger *xlogger.Logger, data DatasetQueries, runner PipelineRunner, limiter *ratelimit.Limiter, version string) *DatasetsEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &DatasetsEchoHandler{logger: logger, data: data, runner: runner, limiter: limiter, version: version}
}

func (h *DatasetsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/index/data", periodQuery(h, "index_data", h.data.IndexData))
	g.GET("/index/latest", latestQuery(h, "index_latest", h.data.IndexLatest))
	g.GET("/index/stats", periodQuery(h, "index_stats", h.data.IndexStats))
	g.GET("/fund/data", periodQuery(h, "fund_data", h.data.FundData))
	g.GET("/fund/latest", latestQuery(h, "fund_latest", h.data.FundLatest))
	g.GET("/fund/stats", periodQuery(h, "fund_stats", h.data.FundStats))
	g.GET("/volatility/data", periodQuery(h, "volatility_data", h.data.VolatilityData))
	g.GET("/volatility/forecast", latestQuery(h, "volatility_forecast", h.data.VolatilityForecast))
	g.GET("/volatility/dashboard-stats", periodQuery(h, "dashboard_stats", h.data.DashboardStats))
	g.GET("/final/fund-liquidative", periodQuery(h, "final_fund_liquidative", h.data.FinalFundLiquidative))
	g.GET("/final/index-weekly-mean", periodQuery(h, "final_index_weekly_mean", h.data.FinalIndexWeeklyMean))
	g.POST("/volatility/run", h.Run)
}

func (h *DatasetsEchoHandler) Root(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"name": "VolCast", "version": h.version})
}

func (h *DatasetsEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// periodQuery adapts a windowed query to an echo handler. The period query
// parameter defaults to 6M; anything outside 1M..2Y is a 400.
func periodQuery[T any](h *DatasetsEchoHandler, name string, q func(context.Context, domrepo.Period) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		defer func() { metrics.DatasetLatency.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

		req := &models.PeriodRequest{}
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			metrics.DatasetErrors.WithLabelValues(name, "ERR_BAD_REQUEST").Inc()
			return xhttp.BadRequestResponse(c, verr)
		}
		res, err := q(c.Request().Context(), domrepo.Period(req.Period))
		if err != nil {
			return h.datasetError(c, name, err)
		}
		return xhttp.SuccessResponse(c, res)
	}
}

func latestQuery[T any](h *DatasetsEchoHandler, name string, q func(context.Context) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		defer func() { metrics.DatasetLatency.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

		res, err := q(c.Request().Context())
		if err != nil {
			return h.datasetError(c, name, err)
		}
		return xhttp.SuccessResponse(c, res)
	}
}

// datasetError maps a missing artifact to a retryable 404 and anything else to a 500.
func (h *DatasetsEchoHandler) datasetError(c echo.Context, name string, err error) error {
	var appErr *xhttp.AppError
	if errors.Is(err, usecase.ErrNotComputed) {
		appErr = xhttp.NotFoundError("ERR_NOT_COMPUTED", "dataset not computed yet, trigger a pipeline run")
	} else {
		h.logger.Error("dataset query failed", xlogger.String("dataset", name), xlogger.Error(err))
		appErr = xhttp.InternalError("failed to load dataset").WithError(err)
	}
	metrics.DatasetErrors.WithLabelValues(name, appErr.Code).Inc()
	return xhttp.AppErrorResponse(c, appErr)
}

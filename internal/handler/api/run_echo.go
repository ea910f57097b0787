package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	"VolCast/internal/service/metrics"
	"VolCast/internal/usecase"
	xhttp "VolCast/pkg/http"
	xlogger "VolCast/pkg/logger"
)

// Run triggers a synchronous pipeline run. The timeout query parameter is a
// Go duration ("90s", "5m") or a number of seconds.
func (h *DatasetsEchoHandler) Run(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		metrics.RunRequests.WithLabelValues("rate_limited").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many run requests, retry later"))
	}

	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	timeout, err := parseTimeout(req.Timeout)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("ERR_INVALID_TIMEOUT", "timeout", err.Error()))
	}
	timeout = h.runner.Timeout(timeout)

	report, err := h.runner.Run(c.Request().Context(), timeout)
	if err != nil {
		return h.runError(c, report, timeout, err)
	}
	metrics.RunRequests.WithLabelValues("succeeded").Inc()

	summary, ferr := h.data.VolatilityForecast(c.Request().Context())
	if ferr != nil {
		h.logger.Warn("forecast summary unavailable after run", xlogger.Error(ferr))
		summary = summaryFromReport(report)
	}
	return xhttp.SuccessResponse(c, models.RunResult{
		RunID:      report.RunID,
		LatestDate: models.FormatDate(report.LatestDate),
		Forecast:   summary,
		DurationMs: report.Duration().Milliseconds(),
		Backend:    report.Backend,
	})
}

// runError keeps the three failure categories distinct: a run already in
// progress (409), a run that exceeded its deadline (504) and a run that
// finished with an error (500, carrying the taxonomy code).
func (h *DatasetsEchoHandler) runError(c echo.Context, report *models.RunReport, timeout time.Duration, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		metrics.RunRequests.WithLabelValues("in_progress").Inc()
		appErr = xhttp.ConflictError("ERR_RUN_IN_PROGRESS", "a pipeline run is already in progress")
	case errors.Is(err, usecase.ErrRunTimeout):
		metrics.RunRequests.WithLabelValues("timed_out").Inc()
		appErr = xhttp.GatewayTimeoutError("ERR_RUN_TIMEOUT", "pipeline run exceeded its timeout").
			WithParam("timeout", timeout.String())
	default:
		metrics.RunRequests.WithLabelValues("failed").Inc()
		appErr = xhttp.NewAppError("ERR_RUN_FAILED", "", "pipeline run failed", http.StatusInternalServerError).
			WithParam("reason", err.Error())
		if code := errs.Code(err); code != "" {
			appErr.WithParam("error_code", code)
		}
	}
	if report != nil {
		appErr.WithParam("run_id", report.RunID)
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.New("timeout must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.New("timeout must be a duration such as 120s or a number of seconds")
	}
	if d <= 0 {
		return 0, errors.New("timeout must be positive")
	}
	return d, nil
}

func summaryFromReport(r *models.RunReport) models.ForecastSummary {
	s := models.ForecastSummary{LatestDate: models.FormatDate(r.LatestDate), Predictions: []models.VolatilityPoint{}}
	for _, p := range r.Predictions {
		v := p.Value
		s.Predictions = append(s.Predictions, models.VolatilityPoint{
			Date:        models.FormatDate(p.Date),
			TargetVol2W: &v,
			Forecast:    true,
		})
	}
	return s
}

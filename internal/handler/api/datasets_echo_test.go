package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/internal/service/ratelimit"
	"VolCast/internal/usecase"
)

type fakeData struct {
	err     error
	periods []domrepo.Period
}

func (f *fakeData) IndexData(_ context.Context, p domrepo.Period) ([]models.IndexPoint, error) {
	f.periods = append(f.periods, p)
	v := 11000.5
	return []models.IndexPoint{{Date: "2024-01-05", Value: &v}}, f.err
}
func (f *fakeData) IndexLatest(context.Context) (models.IndexPoint, error) {
	return models.IndexPoint{Date: "2024-01-05"}, f.err
}
func (f *fakeData) IndexStats(_ context.Context, p domrepo.Period) (models.SeriesStats, error) {
	return models.SeriesStats{Period: string(p), Count: 3}, f.err
}
func (f *fakeData) FundData(context.Context, domrepo.Period) ([]models.FundPoint, error) {
	return nil, f.err
}
func (f *fakeData) FundLatest(context.Context) (models.FundPoint, error) {
	return models.FundPoint{}, f.err
}
func (f *fakeData) FundStats(context.Context, domrepo.Period) (models.SeriesStats, error) {
	return models.SeriesStats{}, f.err
}
func (f *fakeData) VolatilityData(context.Context, domrepo.Period) ([]models.VolatilityPoint, error) {
	return nil, f.err
}
func (f *fakeData) VolatilityForecast(context.Context) (models.ForecastSummary, error) {
	return models.ForecastSummary{LatestDate: "2024-03-01"}, f.err
}
func (f *fakeData) DashboardStats(context.Context, domrepo.Period) (models.DashboardStats, error) {
	return models.DashboardStats{}, f.err
}
func (f *fakeData) FinalFundLiquidative(context.Context, domrepo.Period) ([]models.FinalPoint, error) {
	return nil, f.err
}
func (f *fakeData) FinalIndexWeeklyMean(context.Context, domrepo.Period) ([]models.FinalPoint, error) {
	return nil, f.err
}

type fakeRunner struct {
	report  *models.RunReport
	err     error
	timeout time.Duration
}

func (f *fakeRunner) Run(_ context.Context, timeout time.Duration) (*models.RunReport, error) {
	f.timeout = timeout
	return f.report, f.err
}

func (f *fakeRunner) Timeout(d time.Duration) time.Duration {
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *DatasetsEchoHandler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func appErrors(t *testing.T, env envelope) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestDatasetRoutesPeriod(t *testing.T) {
	data := &fakeData{}
	h := NewDatasetsEchoHandler(nil, data, &fakeRunner{}, nil, "test")

	rec, env := serve(t, h, http.MethodGet, "/api/index/data")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Contains(t, string(env.Data), "11000.5")

	rec, _ = serve(t, h, http.MethodGet, "/api/index/data?period=1Y")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domrepo.Period{domrepo.Period6M, domrepo.Period1Y}, data.periods)

	rec, env = serve(t, h, http.MethodGet, "/api/index/stats?period=5Y")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_ONEOF")
}

func TestDatasetNotComputed(t *testing.T) {
	data := &fakeData{err: fmt.Errorf("%w: data/forecast.csv", usecase.ErrNotComputed)}
	h := NewDatasetsEchoHandler(nil, data, &fakeRunner{}, nil, "test")

	for _, path := range []string{
		"/api/index/latest", "/api/fund/data", "/api/volatility/forecast",
		"/api/volatility/dashboard-stats", "/api/final/fund-liquidative",
	} {
		rec, env := serve(t, h, http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "ERR_NOT_COMPUTED", appErrors(t, env)[0]["code"], path)
	}

	data.err = errors.New("corrupt artifact")
	rec, _ := serve(t, h, http.MethodGet, "/api/fund/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRootAndHealth(t *testing.T) {
	h := NewDatasetsEchoHandler(nil, &fakeData{}, &fakeRunner{}, nil, "1.2.3")
	rec, env := serve(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "1.2.3")

	rec, _ = serve(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunSucceeded(t *testing.T) {
	started := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	runner := &fakeRunner{report: &models.RunReport{
		RunID:      "run-1",
		Status:     models.RunSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		LatestDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Backend:    "gbt",
	}}
	h := NewDatasetsEchoHandler(nil, &fakeData{}, runner, nil, "test")

	rec, env := serve(t, h, http.MethodPost, "/api/volatility/run?timeout=90")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90*time.Second, runner.timeout)

	var res models.RunResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "2024-03-01", res.LatestDate)
	assert.Equal(t, int64(1500), res.DurationMs)
	assert.Equal(t, "2024-03-01", res.Forecast.LatestDate)

	_, _ = serve(t, h, http.MethodPost, "/api/volatility/run?timeout=5m")
	assert.Equal(t, 5*time.Minute, runner.timeout)
	_, _ = serve(t, h, http.MethodPost, "/api/volatility/run")
	assert.Equal(t, 2*time.Minute, runner.timeout)

	rec, _ = serve(t, h, http.MethodPost, "/api/volatility/run?timeout=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunFailureCategories(t *testing.T) {
	report := &models.RunReport{RunID: "run-2"}
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"timeout", errors.Join(usecase.ErrRunTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout, "ERR_RUN_TIMEOUT"},
		{"in progress", usecase.ErrRunInProgress, http.StatusConflict, "ERR_RUN_IN_PROGRESS"},
		{"failed", fmt.Errorf("load: %w", &errs.MissingRequiredSourceError{Source: "fund", Path: "x.csv"}), http.StatusInternalServerError, "ERR_RUN_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewDatasetsEchoHandler(nil, &fakeData{}, &fakeRunner{report: report, err: tc.err}, nil, "test")
			rec, env := serve(t, h, http.MethodPost, "/api/volatility/run")
			assert.Equal(t, tc.status, rec.Code)
			e := appErrors(t, env)[0]
			assert.Equal(t, tc.code, e["code"])
			if tc.name == "failed" {
				params := e["params"].(map[string]any)
				assert.Equal(t, "MISSING_REQUIRED_SOURCE", params["error_code"])
			}
		})
	}
}

func TestRunRateLimited(t *testing.T) {
	runner := &fakeRunner{report: &models.RunReport{RunID: "r"}}
	h := NewDatasetsEchoHandler(nil, &fakeData{}, runner, ratelimit.New(1, time.Hour), "test")

	rec, _ := serve(t, h, http.MethodPost, "/api/volatility/run")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(t, h, http.MethodPost, "/api/volatility/run")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

package models

import "time"

// PeriodRequest selects a trailing window of a served dataset.
type PeriodRequest struct {
	Period string `query:"period" default:"6M" validate:"oneof=1M 3M 6M 1Y 2Y"`
}

// RunRequest carries the caller-supplied deadline of a triggered run. Empty
// selects the configured default.
type RunRequest struct {
	Timeout string `query:"timeout"`
}

// IndexPoint is one served row of the combined index series.
type IndexPoint struct {
	Date         string   `json:"date"`
	Value        *float64 `json:"value"`
	VariationPct *float64 `json:"variation_pct"`
}

// FundPoint is one served row of the cleaned fund table.
type FundPoint struct {
	Date             string              `json:"date"`
	LiquidativeValue *float64            `json:"liquidative_value"`
	Performance      map[string]*float64 `json:"performance"`
}

// VolatilityPoint is one served row of the forecast table.
type VolatilityPoint struct {
	Date        string   `json:"date"`
	GarchVol    *float64 `json:"garch_vol"`
	TargetVol2W *float64 `json:"target_vol_2w"`
	Forecast    bool     `json:"forecast"`
}

// FinalPoint is a plain (date, value) pair used by the final-dataset endpoints.
type FinalPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// SeriesStats summarizes one column over the selected window.
type SeriesStats struct {
	Period        string   `json:"period"`
	Count         int      `json:"count"`
	Min           *float64 `json:"min"`
	Max           *float64 `json:"max"`
	Mean          *float64 `json:"mean"`
	Std           *float64 `json:"std"`
	Current       *float64 `json:"current"`
	ChangePercent *float64 `json:"change_percent"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
}

// ForecastSummary describes the trailing forecast rows.
type ForecastSummary struct {
	LatestDate  string            `json:"latest_date"`
	Predictions []VolatilityPoint `json:"predictions"`
}

// DashboardStats aggregates the volatility dashboard header.
type DashboardStats struct {
	Period           string      `json:"period"`
	GarchVol         SeriesStats `json:"garch_vol"`
	RealizedVol      SeriesStats `json:"realized_vol"`
	LatestForecast   *float64    `json:"latest_forecast"`
	LatestDate       string      `json:"latest_date"`
	ForecastRowCount int         `json:"forecast_row_count"`
}

// RunResult is returned by the trigger endpoint on success.
type RunResult struct {
	RunID      string          `json:"run_id"`
	LatestDate string          `json:"latest_date"`
	Forecast   ForecastSummary `json:"forecast"`
	DurationMs int64           `json:"duration_ms"`
	Backend    string          `json:"backend"`
}

// FormatDate renders a date for the wire.
func FormatDate(t time.Time) string { return t.Format("2006-01-02") }

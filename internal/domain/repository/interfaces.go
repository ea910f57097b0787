package repository

import (
	"context"
	"time"

	"VolCast/internal/domain/models"
)

// TableSource reads a tabular input file as strings. An absent file yields an
// error wrapping fs.ErrNotExist; the caller decides whether the source is required.
type TableSource interface {
	Read(ctx context.Context, path string) (*models.RawTable, error)
	Supports(path string) bool
}

// ArtifactWriter persists a dated table. Read is the inverse used by the serving layer.
type ArtifactWriter interface {
	Write(ctx context.Context, path string, t *models.Table) error
	Read(ctx context.Context, path string) (*models.Table, error)
	Extension() string
}

// ForecastStore is an optional sink for completed forecast tables.
type ForecastStore interface {
	Init(ctx context.Context) error
	StoreForecast(ctx context.Context, report *models.RunReport, t *models.Table) error
	Health(ctx context.Context) error
	Close() error
}

// RunPublisher announces finished runs.
type RunPublisher interface {
	PublishRun(ctx context.Context, report *models.RunReport) error
	Close() error
}

type Metrics interface {
	RecordRun(status string)
	RecordStage(stage string, d time.Duration)
	RecordForecastStep(backend string)
	RecordLastForecast(v float64)
	RecordWarning(kind string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordRun(string)                  {}
func (NopMetrics) RecordStage(string, time.Duration) {}
func (NopMetrics) RecordForecastStep(string)         {}
func (NopMetrics) RecordLastForecast(float64)        {}
func (NopMetrics) RecordWarning(string)              {}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	forecastSteps *prometheus.CounterVec
	lastForecast  prometheus.Gauge
	warnings      *prometheus.CounterVec
}

// New creates a recorder registered on reg; nil selects the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_pipeline_runs_total",
				Help: "Pipeline runs by terminal status",
			},
			[]string{"status"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volcast_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		forecastSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_forecast_steps_total",
				Help: "Sequential forecast steps (one refit and prediction each)",
			},
			[]string{"backend"},
		),
		lastForecast: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "volcast_last_forecast_vol",
				Help: "Last predicted two-week realized volatility",
			},
		),
		warnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volcast_pipeline_warnings_total",
				Help: "Recovered pipeline warnings by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordRun counts a finished run.
func (r *Recorder) RecordRun(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

// RecordStage observes the duration of one pipeline stage.
func (r *Recorder) RecordStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) RecordForecastStep(backend string) {
	r.forecastSteps.WithLabelValues(backend).Inc()
}

func (r *Recorder) RecordLastForecast(v float64) {
	r.lastForecast.Set(v)
}

func (r *Recorder) RecordWarning(kind string) {
	r.warnings.WithLabelValues(kind).Inc()
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	DatasetLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "volcast",
			Subsystem: "serving",
			Name:      "dataset_latency_seconds",
			Help:      "Latency of dataset endpoints including artifact loading",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	DatasetErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volcast",
			Subsystem: "serving",
			Name:      "dataset_errors_total",
			Help:      "Dataset endpoint errors by dataset and code",
		},
		[]string{"dataset", "code"},
	)

	RunRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volcast",
			Subsystem: "serving",
			Name:      "run_requests_total",
			Help:      "Triggered runs by outcome",
		},
		[]string{"outcome"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(DatasetLatency, DatasetErrors, RunRequests)
	})
}

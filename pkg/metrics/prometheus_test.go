package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordRun("succeeded")
	r.RecordRun("succeeded")
	r.RecordRun("timed_out")
	r.RecordStage("forecast", 2*time.Second)
	r.RecordForecastStep("gbt")
	r.RecordLastForecast(0.021)
	r.RecordWarning("parse")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecastSteps.WithLabelValues("gbt")))
	assert.Equal(t, 0.021, testutil.ToFloat64(r.lastForecast))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.warnings.WithLabelValues("parse")))

	n, err := testutil.GatherAndCount(reg, "volcast_pipeline_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

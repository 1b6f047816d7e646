package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	out := &dto.Metric{}
	require.NoError(t, m.Write(out))
	return out
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveDrain("busy", 0)
	})

	before := value(t, batchResults.WithLabelValues("ok")).GetCounter().GetValue()
	IncBatchResult("ok")
	assert.Equal(t, before+1, value(t, batchResults.WithLabelValues("ok")).GetCounter().GetValue())

	SetQueueDepth(3)
	assert.Equal(t, float64(3), value(t, queueDepth).GetGauge().GetValue())

	count := value(t, drainDuration).GetHistogram().GetSampleCount()
	ObserveDrain("ok", 2*time.Second)
	assert.Equal(t, count+1, value(t, drainDuration).GetHistogram().GetSampleCount())
}

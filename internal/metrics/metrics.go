package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leecher"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	batchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_results_total",
			Help:      "Batch outcomes by result.",
		},
		[]string{"result"},
	)

	drains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drains_total",
			Help:      "Queue drains by outcome.",
		},
		[]string{"outcome"},
	)

	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of completed queue drains.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending items seen at the start of the last drain.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, batchResults, drains, drainDuration, queueDepth)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBatchResult(result string) {
	batchResults.WithLabelValues(result).Inc()
}

// ObserveDrain records a finished drain. outcome is "ok", "busy" or "error".
func ObserveDrain(outcome string, d time.Duration) {
	drains.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		drainDuration.Observe(d.Seconds())
	}
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

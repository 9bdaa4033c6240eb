package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

var (
	classifyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repairsense",
		Subsystem: "classify",
		Name:      "requests_total",
		Help:      "Total classify requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	classifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "repairsense",
		Subsystem: "classify",
		Name:      "duration_seconds",
		Help:      "Classify request latency by endpoint",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"endpoint"})
)

// RecordRequest records the outcome of a classify request.
func RecordRequest(endpoint, outcome string) {
	classifyRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordDuration records the latency of a classify request.
func RecordDuration(endpoint string, d time.Duration) {
	classifyDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

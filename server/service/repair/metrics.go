package repair

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultCached    = "cached"
	resultAnomaly   = "anomaly"
	resultPredicted = "predicted"
)

// classifyResults counts resolved texts by how their result was obtained.
var classifyResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "repairsense",
	Subsystem: "classify",
	Name:      "results_total",
	Help:      "Total classified texts by source: cached, anomaly or predicted",
}, []string{"kind"})

func recordResults(kind string, n int) {
	if n > 0 {
		classifyResults.WithLabelValues(kind).Add(float64(n))
	}
}

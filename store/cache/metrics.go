package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

var (
	// cacheOperations counts register calls by backend, operation and result.
	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repairsense",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Total cache operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	// cacheEvictions counts entries removed by the memory cache.
	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repairsense",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total cache entries removed by capacity eviction or expiry",
	}, []string{"backend", "reason"})

	// cacheEntries tracks the live entry count of the memory cache.
	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "repairsense",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of entries held by the cache",
	}, []string{"backend"})
)

func recordOp(backend, op, result string) {
	cacheOperations.WithLabelValues(backend, op, result).Inc()
}

func recordEvictions(backend, reason string, n int) {
	if n > 0 {
		cacheEvictions.WithLabelValues(backend, reason).Add(float64(n))
	}
}

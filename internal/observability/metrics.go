// Package observability exposes Prometheus metrics for the data layer.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
		},
		[]string{"upstream"},
	)

	estimateResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimate_cache_results_total",
			Help: "Estimate lookups by outcome (hit, shared_hit, miss, coalesced, fallback).",
		},
		[]string{"outcome"},
	)

	cacheOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Shared-tier cache operations by op and result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Shared-tier cache operation duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	pollerFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_fetch_total",
			Help: "Live-cluster poll attempts by result (ok, timeout, error, stale).",
		},
		[]string{"result"},
	)

	pollerClusters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_clusters",
			Help: "Cluster count from the most recent successful poll.",
		},
	)

	invalidationApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_applied_total",
			Help: "Invalidation event outcomes (delete, skip_version, error).",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncEstimateResult(outcome string) {
	estimateResults.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncPollerFetch(result string) {
	pollerFetchTotal.WithLabelValues(result).Inc()
}

func SetPollerClusters(n int) {
	pollerClusters.Set(float64(n))
}

func IncInvalidation(outcome string) {
	invalidationApplied.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

// Package metrics exposes the core's Prometheus collectors. The core owns
// the counters/histograms/gauges themselves but not their storage or
// scraping — that is the fronting ops stack's job.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_dispatch_total",
		Help: "Total upstream dispatch attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_dispatch_duration_seconds",
		Help:    "Duration of upstream dispatch attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})

	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_tokens_total",
		Help: "Total tokens returned by upstream calls",
	}, []string{"provider"})

	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_circuit_state",
		Help: "Circuit breaker state per destination (0=closed, 1=half_open, 2=open)",
	}, []string{"destination"})

	EndpointHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_endpoint_healthy",
		Help: "Endpoint health bit (1=healthy, 0=unhealthy)",
	}, []string{"endpoint"})

	FusionConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_fusion_confidence",
		Help:    "Fused confidence score of completed requests, by mode (single or fan-out mode)",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"mode"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_cache_hits_total",
		Help: "Response cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_cache_misses_total",
		Help: "Response cache misses",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_http_requests_total",
		Help: "Total HTTP requests handled by the public API",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// CircuitStateValue maps a models.CircuitState name to the gauge encoding
// used by CircuitState.
func CircuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}

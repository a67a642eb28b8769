package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/coreflux/llmorchestrator/internal/metrics"
)

func TestObserveHTTPRequest_RecordsStatusAsDecimalString(t *testing.T) {
	metrics.ObserveHTTPRequest("GET", "/v1/complete", 200, 5*time.Millisecond)

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/v1/complete", "200"))
	assert.GreaterOrEqual(t, got, float64(1))
}

func TestObserveHTTPRequest_ServerErrorStatus(t *testing.T) {
	metrics.ObserveHTTPRequest("POST", "/v1/complete", 503, time.Millisecond)

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/v1/complete", "503"))
	assert.GreaterOrEqual(t, got, float64(1))
}

func TestCircuitStateValue(t *testing.T) {
	assert.Equal(t, float64(2), metrics.CircuitStateValue("open"))
	assert.Equal(t, float64(1), metrics.CircuitStateValue("half_open"))
	assert.Equal(t, float64(0), metrics.CircuitStateValue("closed"))
}

package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/models"
)

func TestRegistry_StartsClosed(t *testing.T) {
	r := breaker.New(breaker.DefaultConfig(), nil, nil)

	assert.Equal(t, models.CircuitClosed, r.State("pA"))
	assert.True(t, r.Allow("pA"))
}

func TestRegistry_OpensAfterFailureThreshold(t *testing.T) {
	r := breaker.New(breaker.Config{FailureThreshold: 3, SuccessThreshold: 2, ResetTimeout: time.Hour}, nil, nil)

	for i := 0; i < 3; i++ {
		require.True(t, r.Allow("pA"))
		r.ReportFailure("pA")
	}

	assert.Equal(t, models.CircuitOpen, r.State("pA"))
	assert.False(t, r.Allow("pA"))
}

func TestRegistry_HalfOpenAllowsSingleProbe(t *testing.T) {
	r := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: time.Millisecond}, nil, nil)

	r.ReportFailure("pA")
	require.Equal(t, models.CircuitOpen, r.State("pA"))

	time.Sleep(2 * time.Millisecond)

	assert.True(t, r.Allow("pA"))
	assert.Equal(t, models.CircuitHalfOpen, r.State("pA"))
	assert.False(t, r.Allow("pA"), "a second concurrent probe must be refused")
}

func TestRegistry_HalfOpenClosesAfterConsecutiveSuccesses(t *testing.T) {
	r := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: time.Millisecond}, nil, nil)

	r.ReportFailure("pA")
	time.Sleep(2 * time.Millisecond)
	require.True(t, r.Allow("pA"))

	r.ReportSuccess("pA")
	assert.Equal(t, models.CircuitHalfOpen, r.State("pA"), "one success is not enough to close")

	require.True(t, r.Allow("pA"))
	r.ReportSuccess("pA")
	assert.Equal(t, models.CircuitClosed, r.State("pA"))
}

func TestRegistry_HalfOpenFailureReopens(t *testing.T) {
	r := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: time.Millisecond}, nil, nil)

	r.ReportFailure("pA")
	time.Sleep(2 * time.Millisecond)
	require.True(t, r.Allow("pA"))

	r.ReportFailure("pA")
	assert.Equal(t, models.CircuitOpen, r.State("pA"))
}

func TestRegistry_DestinationsAreIndependent(t *testing.T) {
	r := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: time.Hour}, nil, nil)

	r.ReportFailure("pA")

	assert.Equal(t, models.CircuitOpen, r.State("pA"))
	assert.Equal(t, models.CircuitClosed, r.State("pB"))
}

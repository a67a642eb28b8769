// Package breaker implements a per-destination circuit breaker: closed,
// open, and half-open states with a single concurrent half-open probe and a
// consecutive-success threshold to close again. Adapted from the shared
// circuit breaker pattern used elsewhere in the stack, tightened to the
// core's exact half-open semantics: at most one probe in flight, and a
// configurable run of consecutive successes (not just one) to fully close.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coreflux/llmorchestrator/internal/metrics"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// Config configures a single circuit's thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state after which the circuit opens.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes required in
	// the half-open state before the circuit closes.
	SuccessThreshold int
	// ResetTimeout is how long the circuit stays open before allowing a
	// single half-open probe.
	ResetTimeout time.Duration
}

// DefaultConfig matches the core's fixed defaults: 5 consecutive failures to
// open, 2 consecutive successes to close, 60s reset timeout.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

type circuit struct {
	mu sync.Mutex

	state              models.CircuitState
	consecutiveFails   int
	consecutiveOK      int
	openedAt           time.Time
	halfOpenProbeInUse bool
}

// Registry holds one circuit per destination, created lazily on first use.
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	circuits map[string]*circuit

	onStateChange func(dest string, from, to models.CircuitState)
}

// New returns a Registry of circuits sharing cfg. logger and onStateChange
// may be nil.
func New(cfg Config, logger *zap.Logger, onStateChange func(dest string, from, to models.CircuitState)) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		circuits:      make(map[string]*circuit),
		onStateChange: onStateChange,
	}
}

func (r *Registry) circuitFor(dest string) *circuit {
	r.mu.RLock()
	c, ok := r.circuits[dest]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.circuits[dest]; ok {
		return c
	}
	c = &circuit{state: models.CircuitClosed}
	r.circuits[dest] = c
	return c
}

// Allow reports whether a call to dest may proceed. In the open state it
// returns false until ResetTimeout has elapsed, at which point exactly one
// caller is let through as the half-open probe; every other concurrent
// caller during that window is still refused.
func (r *Registry) Allow(dest string) bool {
	c := r.circuitFor(dest)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.CircuitClosed:
		return true

	case models.CircuitOpen:
		if time.Since(c.openedAt) < r.cfg.ResetTimeout {
			return false
		}
		r.transition(dest, c, models.CircuitHalfOpen)
		c.halfOpenProbeInUse = true
		c.consecutiveOK = 0
		return true

	case models.CircuitHalfOpen:
		if c.halfOpenProbeInUse {
			return false
		}
		c.halfOpenProbeInUse = true
		return true

	default:
		return true
	}
}

// ReportSuccess records a successful call against dest.
func (r *Registry) ReportSuccess(dest string) {
	c := r.circuitFor(dest)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.CircuitClosed:
		c.consecutiveFails = 0

	case models.CircuitHalfOpen:
		c.halfOpenProbeInUse = false
		c.consecutiveOK++
		if c.consecutiveOK >= r.cfg.SuccessThreshold {
			c.consecutiveFails = 0
			r.transition(dest, c, models.CircuitClosed)
		}

	case models.CircuitOpen:
		c.halfOpenProbeInUse = false
	}
}

// ReportFailure records a failed call against dest. Only failures that
// models.ErrorKind.IsFailure classifies as countable should reach here —
// callers are expected to filter cancellations and 4xx faults before
// calling ReportFailure.
func (r *Registry) ReportFailure(dest string) {
	c := r.circuitFor(dest)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.CircuitClosed:
		c.consecutiveFails++
		c.consecutiveOK = 0
		if c.consecutiveFails >= r.cfg.FailureThreshold {
			r.transition(dest, c, models.CircuitOpen)
			c.openedAt = time.Now()
		}

	case models.CircuitHalfOpen:
		c.halfOpenProbeInUse = false
		c.consecutiveOK = 0
		r.transition(dest, c, models.CircuitOpen)
		c.openedAt = time.Now()

	case models.CircuitOpen:
		c.halfOpenProbeInUse = false
		c.openedAt = time.Now()
	}
}

// State reports dest's current circuit state.
func (r *Registry) State(dest string) models.CircuitState {
	c := r.circuitFor(dest)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition must be called with c.mu held.
func (r *Registry) transition(dest string, c *circuit, to models.CircuitState) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to

	metrics.CircuitState.WithLabelValues(dest).Set(metrics.CircuitStateValue(string(to)))

	r.logger.Info("circuit state changed",
		zap.String("destination", dest),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	if r.onStateChange != nil {
		go r.onStateChange(dest, from, to)
	}
}

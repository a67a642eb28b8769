// Package health tracks per-destination liveness and rolling latency so the
// ranker and load balancer can prefer fast, healthy endpoints without
// hitting them first.
package health

import (
	"sync"

	"github.com/coreflux/llmorchestrator/internal/metrics"
)

const (
	// ringSize is the number of most recent call outcomes retained for the
	// rolling latency average.
	ringSize = 100
	// consecutiveFailuresToUnhealthy is the run length of consecutive
	// failures after which a destination flips unhealthy.
	consecutiveFailuresToUnhealthy = 3
	// consecutiveSuccessesToHealthy is the run length of consecutive
	// successes after which an unhealthy destination flips back healthy.
	consecutiveSuccessesToHealthy = 1

	// priorLatencyMs is the average latency Snapshot reports for a
	// destination with an empty rolling window. A neutral prior rather
	// than zero, so a never-called destination doesn't spuriously win a
	// least-connections latency tie-break against one with a real track
	// record.
	priorLatencyMs = 100.0
)

// Snapshot is a point-in-time read of a destination's tracked health.
type Snapshot struct {
	Healthy           bool
	InFlight          int64
	AvgLatencyMs      float64
	ConsecutiveFails  int
	SampleCount       int
}

type destState struct {
	mu sync.Mutex

	inFlight int64

	ring     [ringSize]int64
	ringPos  int
	ringLen  int

	healthy          bool
	consecutiveFails int
	consecutiveOK    int
}

func newDestState() *destState {
	return &destState{healthy: true}
}

// Tracker holds per-destination state for every endpoint the balancer and
// ranker consult. Keyed by endpoint ID; callers that only know a provider ID
// should key by provider ID consistently — the tracker itself is agnostic to
// what a "destination" means.
type Tracker struct {
	mu    sync.RWMutex
	dests map[string]*destState
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{dests: make(map[string]*destState)}
}

func (t *Tracker) state(dest string) *destState {
	t.mu.RLock()
	s, ok := t.dests[dest]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.dests[dest]; ok {
		return s
	}
	s = newDestState()
	t.dests[dest] = s
	return s
}

// BeginCall records that a call to dest has started, incrementing its
// in-flight counter. Callers must pair every BeginCall with exactly one
// EndCall.
func (t *Tracker) BeginCall(dest string) {
	s := t.state(dest)
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

// EndCall records the completion of a call to dest: decrements in-flight,
// appends elapsedMs to the rolling window, and updates the consecutive
// success/failure run used to flip the healthy flag.
func (t *Tracker) EndCall(dest string, elapsedMs int64, success bool) {
	s := t.state(dest)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight > 0 {
		s.inFlight--
	}

	s.ring[s.ringPos] = elapsedMs
	s.ringPos = (s.ringPos + 1) % ringSize
	if s.ringLen < ringSize {
		s.ringLen++
	}

	if success {
		s.consecutiveFails = 0
		s.consecutiveOK++
		if !s.healthy && s.consecutiveOK >= consecutiveSuccessesToHealthy {
			s.healthy = true
		}
	} else {
		s.consecutiveOK = 0
		s.consecutiveFails++
		if s.healthy && s.consecutiveFails >= consecutiveFailuresToUnhealthy {
			s.healthy = false
		}
	}

	healthyGauge := 0.0
	if s.healthy {
		healthyGauge = 1.0
	}
	metrics.EndpointHealthy.WithLabelValues(dest).Set(healthyGauge)
}

// Snapshot returns dest's current tracked state. An unseen destination is
// reported healthy with zero samples — health tracking is opt-in via use,
// not registration.
func (t *Tracker) Snapshot(dest string) Snapshot {
	s := t.state(dest)
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for i := 0; i < s.ringLen; i++ {
		sum += s.ring[i]
	}
	avg := priorLatencyMs
	if s.ringLen > 0 {
		avg = float64(sum) / float64(s.ringLen)
	}

	return Snapshot{
		Healthy:          s.healthy,
		InFlight:         s.inFlight,
		AvgLatencyMs:     avg,
		ConsecutiveFails: s.consecutiveFails,
		SampleCount:      s.ringLen,
	}
}

// Healthy reports dest's current flip flag without the rest of the
// snapshot. Unseen destinations are healthy.
func (t *Tracker) Healthy(dest string) bool {
	s := t.state(dest)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// InFlight reports dest's current in-flight call count.
func (t *Tracker) InFlight(dest string) int64 {
	s := t.state(dest)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

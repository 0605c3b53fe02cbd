package gateway

import (
	"sync"
	"time"
)

// CircuitState is one of the three states spec §4.6/§4.8 describe.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type circuitEntry struct {
	state          CircuitState
	failures       int
	threshold      int
	resetTimeout   time.Duration
	retryAt        time.Time
	probeInFlight  bool
}

// CircuitBreaker is a per-endpoint keyed registry of breaker state. Unlike
// the teacher's single-breaker-per-instance CircuitBreaker, this one is
// keyed because GatewayCore fronts many endpoints behind one gateway
// instance (spec §4.6's "Keyed state as in §4.6").
//
// can_pass never mutates state except the documented open->half_open edge,
// so stats reads stay honest (spec §4.8).
type CircuitBreaker struct {
	mu      sync.Mutex
	entries map[string]*circuitEntry
}

// NewCircuitBreaker constructs an empty keyed breaker registry.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{entries: make(map[string]*circuitEntry)}
}

func (b *CircuitBreaker) entry(endpointID string, threshold int, resetMS int) *circuitEntry {
	e, ok := b.entries[endpointID]
	if !ok {
		e = &circuitEntry{threshold: threshold, resetTimeout: time.Duration(resetMS) * time.Millisecond}
		b.entries[endpointID] = e
	}
	return e
}

// CanPass reports whether a request to endpointID may proceed right now. In
// the open->half_open edge, it marks the single probe in flight and returns
// true for exactly the caller that triggers the transition.
func (b *CircuitBreaker) CanPass(endpointID string, threshold, resetMS int) (bool, CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(endpointID, threshold, resetMS)
	switch e.state {
	case CircuitClosed:
		return true, CircuitClosed
	case CircuitHalfOpen:
		// Only one probe may be in flight; every other caller is denied.
		return false, CircuitHalfOpen
	case CircuitOpen:
		if time.Now().Before(e.retryAt) {
			return false, CircuitOpen
		}
		e.state = CircuitHalfOpen
		e.probeInFlight = true
		return true, CircuitHalfOpen
	}
	return false, e.state
}

// RecordSuccess transitions half_open->closed and resets counters; a
// success while already closed just resets the failure count.
func (b *CircuitBreaker) RecordSuccess(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[endpointID]
	if !ok {
		return
	}
	e.state = CircuitClosed
	e.failures = 0
	e.probeInFlight = false
}

// RecordFailure counts a failure. In half_open, any probe failure reopens
// the circuit with a fresh fixed retry_at (no exponential growth). In
// closed, reaching the failure threshold opens the circuit.
func (b *CircuitBreaker) RecordFailure(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[endpointID]
	if !ok {
		return
	}

	if e.state == CircuitHalfOpen {
		e.state = CircuitOpen
		e.retryAt = time.Now().Add(e.resetTimeout)
		e.probeInFlight = false
		e.failures = 0
		return
	}

	e.failures++
	if e.failures >= e.threshold {
		e.state = CircuitOpen
		e.retryAt = time.Now().Add(e.resetTimeout)
	}
}

// CircuitStats is the observable-but-not-authoritative snapshot spec §4.6
// promises (operators only, never consulted for admission).
type CircuitStats struct {
	State    CircuitState
	Failures int
	RetryAt  time.Time
}

// Stats returns the current snapshot for endpointID, or CircuitClosed with
// zero failures if the endpoint has never recorded activity.
func (b *CircuitBreaker) Stats(endpointID string) CircuitStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[endpointID]
	if !ok {
		return CircuitStats{State: CircuitClosed}
	}
	return CircuitStats{State: e.state, Failures: e.failures, RetryAt: e.retryAt}
}

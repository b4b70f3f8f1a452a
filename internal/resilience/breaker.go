// Package resilience wraps database access with retry, failure
// classification, and a circuit breaker.
//
// The breaker and retrier are explicit instances constructed once in the
// server's dependency-injection root and shared by reference. Their state is
// per-process: horizontally scaled instances do not coordinate, which is an
// accepted limitation — only the database-backed usage ledger is globally
// consistent.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls without
// attempting the underlying operation.
var ErrCircuitOpen = errors.New("database circuit open")

// IsCircuitOpen reports whether err was caused by an open circuit.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

const (
	// DefaultFailureThreshold is the number of consecutive retryable
	// failures that opens the circuit.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long the circuit stays open before admitting
	// a probe.
	DefaultCooldown = 30 * time.Second
)

// Breaker is a circuit breaker over consecutive connection-class failures.
//
// Transitions: CLOSED -> OPEN after threshold consecutive failures;
// OPEN -> HALF_OPEN once the cooldown elapses, admitting exactly one probe;
// HALF_OPEN -> CLOSED on probe success, HALF_OPEN -> OPEN on probe failure.
type Breaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	probeInFlight       bool

	threshold int
	cooldown  time.Duration
}

// NewBreaker creates a closed breaker. Zero threshold or cooldown select the
// defaults.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a call may proceed. While open it returns
// ErrCircuitOpen until the cooldown elapses; the first caller after the
// cooldown becomes the half-open probe and all others keep failing fast
// until the probe resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailureAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure counter and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.state = StateClosed
}

// RecordFailure counts a connection-class failure. The circuit opens when
// the threshold is reached, and reopens immediately on a failed probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureAt = time.Now()
	b.probeInFlight = false

	if b.state == StateHalfOpen || b.consecutiveFailures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Package ratelimit implements an in-memory sliding-window rate limiter.
//
// The limiter is best-effort and per-process: a restart resets all counters
// and horizontally scaled instances do not share state. That is acceptable
// because rate limiting here is an abuse safeguard, not a billing mechanism;
// billing-relevant metering lives in the usage ledger.
package ratelimit

import (
	"sync"
	"time"
)

// Scope identifies which dimension of a request a limiter keys on.
type Scope string

const (
	ScopeIP       Scope = "ip"
	ScopeUser     Scope = "user"
	ScopeEndpoint Scope = "endpoint"
)

// sweepInterval is how often empty keys are garbage-collected.
const sweepInterval = 5 * time.Minute

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // time until the window admits another request
}

// Limiter tracks request instants per key within a trailing window.
//
// On each check, instants older than the window are pruned; if the surviving
// count has reached the limit the request is denied and RetryAfter reports
// when the oldest surviving instant will leave the window.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time
	stop    chan struct{}
}

// NewLimiter creates a sliding-window limiter and starts its sweep goroutine.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		entries:     make(map[string][]time.Time),
		stop:        make(chan struct{}),
	}

	go l.sweep()

	return l
}

// Allow checks whether a request for the given key is admitted now.
// Admitted requests are recorded; denied requests are not.
func (l *Limiter) Allow(key string) Decision {
	return l.allowAt(key, time.Now())
}

// allowAt is the testable core of Allow.
func (l *Limiter) allowAt(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxRequests <= 0 {
		return Decision{Allowed: true}
	}

	cutoff := now.Add(-l.window)
	kept := pruneBefore(l.entries[key], cutoff)

	if len(kept) >= l.maxRequests {
		l.entries[key] = kept
		retryAfter := kept[0].Sub(cutoff)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{
			Allowed:    false,
			Limit:      l.maxRequests,
			Remaining:  0,
			RetryAfter: retryAfter,
		}
	}

	kept = append(kept, now)
	l.entries[key] = kept

	return Decision{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - len(kept),
	}
}

// pruneBefore drops instants at or before the cutoff, preserving order.
func pruneBefore(instants []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(instants) && !instants[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return instants
	}
	return append([]time.Time(nil), instants[i:]...)
}

// sweep periodically removes keys with no instants inside the window,
// bounding memory for one-off clients.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.window)
			l.mu.Lock()
			for key, instants := range l.entries {
				if len(instants) == 0 || !instants[len(instants)-1].After(cutoff) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the sweep goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// =============================================================================
// Multi-scope limiter
// =============================================================================

// Config holds the limit for one scope.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Keys carries the per-scope keys extracted from a request.
// An empty key skips that scope (e.g., no user key for anonymous requests
// when user-scope limiting is keyed on account IDs).
type Keys struct {
	IP       string
	User     string
	Endpoint string
}

// ScopedDecision is a Decision annotated with the scope that produced it.
type ScopedDecision struct {
	Decision
	Scope Scope
}

// MultiLimiter consults independent limiters for IP, user, and endpoint
// scopes in sequence. A request is denied by the first scope that rejects it;
// remaining scopes are not consulted.
type MultiLimiter struct {
	ip       *Limiter
	user     *Limiter
	endpoint *Limiter
}

// NewMultiLimiter creates the three scope limiters.
func NewMultiLimiter(ip, user, endpoint Config) *MultiLimiter {
	return &MultiLimiter{
		ip:       NewLimiter(ip.MaxRequests, ip.Window),
		user:     NewLimiter(user.MaxRequests, user.Window),
		endpoint: NewLimiter(endpoint.MaxRequests, endpoint.Window),
	}
}

// Check evaluates all applicable scopes and short-circuits on the first denial.
func (m *MultiLimiter) Check(keys Keys) ScopedDecision {
	checks := []struct {
		scope   Scope
		limiter *Limiter
		key     string
	}{
		{ScopeIP, m.ip, keys.IP},
		{ScopeUser, m.user, keys.User},
		{ScopeEndpoint, m.endpoint, keys.Endpoint},
	}

	last := ScopedDecision{Decision: Decision{Allowed: true}}
	for _, c := range checks {
		if c.key == "" {
			continue
		}
		d := c.limiter.Allow(c.key)
		if !d.Allowed {
			return ScopedDecision{Decision: d, Scope: c.scope}
		}
		last = ScopedDecision{Decision: d, Scope: c.scope}
	}

	return last
}

// Stop terminates the sweep goroutines of all scope limiters.
func (m *MultiLimiter) Stop() {
	m.ip.Stop()
	m.user.Stop()
	m.endpoint.Stop()
}

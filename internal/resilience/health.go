package resilience

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// HealthStatus values.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// HealthReport is the result of a database health probe.
type HealthReport struct {
	Status       string        `json:"status"`
	Latency      time.Duration `json:"-"`
	LatencyMs    int64         `json:"latencyMs"`
	CircuitState State         `json:"circuitState"`
	CheckedAt    time.Time     `json:"checkedAt"`
}

// DefaultHealthTTL is how long a health probe result is cached.
const DefaultHealthTTL = 30 * time.Second

// HealthChecker performs trivial round-trip queries against the database and
// caches the result so health endpoints do not add per-request load.
type HealthChecker struct {
	db      *sql.DB
	breaker *Breaker
	ttl     time.Duration

	mu     sync.Mutex
	cached HealthReport
}

// NewHealthChecker creates a HealthChecker. Zero ttl selects the default.
func NewHealthChecker(db *sql.DB, breaker *Breaker, ttl time.Duration) *HealthChecker {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthChecker{
		db:      db,
		breaker: breaker,
		ttl:     ttl,
	}
}

// Check returns the current health report, probing the database at most once
// per TTL. The probe itself bypasses the retrier: a health check should
// observe failures, not mask them.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.cached.CheckedAt.IsZero() && time.Since(h.cached.CheckedAt) < h.ttl {
		// Circuit state is live even when the probe is cached.
		h.cached.CircuitState = h.breaker.State()
		return h.cached
	}

	start := time.Now()
	var one int
	err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	latency := time.Since(start)

	report := HealthReport{
		Latency:      latency,
		LatencyMs:    latency.Milliseconds(),
		CircuitState: h.breaker.State(),
		CheckedAt:    time.Now(),
	}
	if err != nil {
		report.Status = HealthStatusUnhealthy
	} else {
		report.Status = HealthStatusHealthy
	}

	h.cached = report
	return report
}

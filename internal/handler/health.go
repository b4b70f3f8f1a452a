// Package handler contains HTTP handlers for the application.
//
// This file implements health endpoints: a trivial liveness probe and a
// readiness probe backed by the cached database health check.
//
// Routes:
//   - GET /health         -> Live
//   - GET /health/details -> Details
package handler

import (
	"log/slog"
	"net/http"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/resilience"
)

// HealthHandler handles health probe requests.
type HealthHandler struct {
	checker *resilience.HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker *resilience.HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		logger:  logger,
	}
}

// RegisterRoutes registers health routes on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Live)
	mux.HandleFunc("GET /health/details", h.Details)
}

// Live reports process liveness. It never touches the database.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Details reports database connectivity and circuit breaker state.
// Returns 503 when the database probe fails so load balancers can
// route around an unhealthy instance.
func (h *HealthHandler) Details(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())

	switch report.CircuitState {
	case resilience.StateClosed:
		metrics.CircuitBreakerState.Set(0)
	case resilience.StateOpen:
		metrics.CircuitBreakerState.Set(1)
	case resilience.StateHalfOpen:
		metrics.CircuitBreakerState.Set(2)
	}

	status := http.StatusOK
	if report.Status != resilience.HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}

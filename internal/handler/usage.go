// Package handler contains HTTP handlers for the application.
//
// This file implements the usage handler: reporting the requesting
// identity's current-period usage across every analysis type.
//
// Routes:
//   - GET /api/usage -> Get
package handler

import (
	"log/slog"
	"net/http"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// UsageHandler handles usage reporting requests.
type UsageHandler struct {
	usageService service.UsageService
	logger       *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageService service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

// RegisterRoutes registers usage routes on the mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/usage", h.Get)
}

// Get returns the identity's usage snapshot for the current billing period.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.get"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	snapshot, err := h.usageService.Snapshot(r.Context(), identity)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": snapshot})
}

// Package handler contains HTTP handlers for the application.
//
// This file implements analysis handlers: running AI analyses and browsing
// analysis history.
//
// Routes:
//   - POST /api/analyses/{type} -> Run
//   - GET  /api/analyses/{id}   -> Get
//   - GET  /api/analyses        -> List
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// maxAnalysisBodySize caps the JSON request body for analysis runs.
// Large inputs belong in artifact uploads, not inline text.
const maxAnalysisBodySize = 256 * 1024 // 256KB

// AnalysisHandler handles analysis-related HTTP requests.
type AnalysisHandler struct {
	analysisService service.AnalysisService
	gateService     service.GateService
	logger          *slog.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(analysisService service.AnalysisService, gateService service.GateService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		gateService:     gateService,
		logger:          logger,
	}
}

// RegisterRoutes registers analysis routes on the mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyses/{type}", h.Run)
	mux.HandleFunc("GET /api/analyses/{id}", h.Get)
	mux.HandleFunc("GET /api/analyses", h.List)
}

// analysisResponse is the JSON shape for a stored analysis.
type analysisResponse struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	ArtifactID string          `json:"artifactId,omitempty"`
	Result     json.RawMessage `json:"result"`
	Model      string          `json:"model,omitempty"`
	CreatedAt  string          `json:"createdAt,omitempty"`
}

func toAnalysisResponse(a *domain.Analysis) analysisResponse {
	resp := analysisResponse{
		Type:   a.Type.String(),
		Status: string(a.Status),
		Result: a.Result,
		Model:  a.Model,
	}
	// A zero ID means the run succeeded but the history row was not
	// persisted; the result is still returned to the caller.
	if a.ID != uuid.Nil {
		resp.ID = a.ID.String()
	}
	if a.ArtifactID != nil {
		resp.ArtifactID = a.ArtifactID.String()
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// Run executes an analysis. The request is gated on rate limits and the
// identity's monthly usage allowance before any AI work happens.
func (h *AnalysisHandler) Run(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analysis.run"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	analysisType, err := domain.ParseAnalysisType(r.PathValue("type"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req struct {
		Input      string `json:"input"`
		ArtifactID string `json:"artifactId"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAnalysisBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid request body"))
		return
	}

	var artifactID *uuid.UUID
	if req.ArtifactID != "" {
		id, err := uuid.Parse(req.ArtifactID)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid artifact ID"))
			return
		}
		artifactID = &id
	}

	decision, err := h.gateService.Evaluate(r.Context(), service.GateParams{
		Identity: identity,
		Type:     analysisType,
		IP:       middleware.ClientIP(r),
		Endpoint: "analyses",
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !decision.Allowed {
		DecisionResponse(w, r, h.logger, decision)
		return
	}

	analysis, err := h.analysisService.Run(r.Context(), service.RunAnalysisParams{
		Identity:   identity,
		Type:       analysisType,
		Input:      req.Input,
		ArtifactID: artifactID,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analysis": toAnalysisResponse(analysis),
		"usage":    decision.Usage,
	})
}

// Get returns a single analysis owned by the requesting identity.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analysis.get"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	analysisID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid analysis ID"))
		return
	}

	analysis, err := h.analysisService.GetByID(r.Context(), analysisID, identity.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": toAnalysisResponse(analysis)})
}

// List returns the identity's analysis history, newest first.
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analysis.list"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	analyses, err := h.analysisService.List(r.Context(), identity.ID, limit, offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := make([]analysisResponse, 0, len(analyses))
	for i := range analyses {
		items = append(items, toAnalysisResponse(&analyses[i]))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"analyses": items})
}

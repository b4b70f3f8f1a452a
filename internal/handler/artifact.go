// Package handler contains HTTP handlers for the application.
//
// This file implements artifact handlers: uploading source files and
// retrieving their metadata and download URLs.
//
// Routes:
//   - POST /api/artifacts      -> Upload
//   - GET  /api/artifacts/{id} -> Get
package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// ArtifactHandler handles artifact upload and retrieval requests.
type ArtifactHandler struct {
	artifactService service.ArtifactService
	logger          *slog.Logger
}

// NewArtifactHandler creates a new ArtifactHandler.
func NewArtifactHandler(artifactService service.ArtifactService, logger *slog.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		artifactService: artifactService,
		logger:          logger,
	}
}

// RegisterRoutes registers artifact routes on the mux.
func (h *ArtifactHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/artifacts", h.Upload)
	mux.HandleFunc("GET /api/artifacts/{id}", h.Get)
}

// artifactResponse is the JSON shape for an artifact.
type artifactResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
	CreatedAt    string `json:"createdAt"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

func toArtifactResponse(a *domain.Artifact, url, thumbnailURL string) artifactResponse {
	return artifactResponse{
		ID:           a.ID.String(),
		Kind:         string(a.Kind),
		FileName:     a.FileName,
		ContentType:  a.ContentType,
		SizeBytes:    a.SizeBytes,
		CreatedAt:    a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		URL:          url,
		ThumbnailURL: thumbnailURL,
	}
}

// Upload accepts a multipart upload with "file" and "kind" fields and
// stores the artifact for the requesting identity.
func (h *ArtifactHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "handler.artifact.upload"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	// Cap the request body; the service enforces the per-file limit but
	// this stops oversized bodies before multipart parsing buffers them.
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxArtifactSize+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid multipart request"))
		return
	}

	kind := domain.ArtifactKind(r.FormValue("kind"))
	if !kind.IsValid() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "kind must be \"document\" or \"photo\""))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "A file is required"))
		return
	}
	defer file.Close()

	artifact, err := h.artifactService.Upload(r.Context(), file, header, identity, kind)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"artifact": toArtifactResponse(artifact, "", ""),
	})
}

// Get returns artifact metadata plus short-lived download URLs.
func (h *ArtifactHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.artifact.get"

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "identity not resolved"))
		return
	}

	artifactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid artifact ID"))
		return
	}

	artifact, err := h.artifactService.GetByID(r.Context(), artifactID, identity.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	url, err := h.artifactService.GetURL(r.Context(), artifactID, identity.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var thumbnailURL string
	if artifact.HasThumbnail() {
		thumbnailURL, err = h.artifactService.GetThumbnailURL(r.Context(), artifactID, identity.ID)
		if err != nil {
			h.logger.Warn("failed to generate thumbnail URL", "error", err, "artifact_id", artifactID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"artifact": toArtifactResponse(artifact, url, thumbnailURL),
	})
}

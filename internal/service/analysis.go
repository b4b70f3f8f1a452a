// Package service contains business logic for the application.
//
// This file implements the analysis service: it runs an AI analysis against
// user input or an uploaded artifact, normalizes the model output, and
// records the result.
package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/repository"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/resilience"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ArtifactReader is the slice of ArtifactService the analysis service
// depends on.
type ArtifactReader interface {
	Read(ctx context.Context, artifactID uuid.UUID, identityID string) (io.ReadCloser, *domain.Artifact, error)
}

// RunAnalysisParams carries the inputs for one analysis run. Access control
// has already happened by the time Run is called; the gate decides, this
// service executes.
type RunAnalysisParams struct {
	Identity *domain.Identity
	Type     domain.AnalysisType

	// Input is the user-supplied text for dna, family_tree, and research
	// analyses.
	Input string

	// ArtifactID references the uploaded source file for document and photo
	// analyses.
	ArtifactID *uuid.UUID
}

// AnalysisService runs analyses and manages analysis history.
type AnalysisService interface {
	// Run executes an analysis end to end: load the artifact if one is
	// referenced, call the AI provider, normalize the output, and record
	// the result. The returned analysis always carries usable result data;
	// unparseable model output is recorded with fallback status.
	Run(ctx context.Context, params RunAnalysisParams) (*domain.Analysis, error)

	// GetByID retrieves an analysis owned by the given identity.
	// Returns domain.ENOTFOUND if it doesn't exist or belongs to someone else.
	GetByID(ctx context.Context, analysisID uuid.UUID, identityID string) (*domain.Analysis, error)

	// List retrieves analysis history for an identity, newest first.
	List(ctx context.Context, identityID string, limit, offset int) ([]domain.Analysis, error)
}

// =============================================================================
// Implementation
// =============================================================================

const (
	// analysisDefaultLimit is the page size used when the caller doesn't
	// specify one.
	analysisDefaultLimit = 20

	// analysisMaxLimit caps the page size for history listings.
	analysisMaxLimit = 100

	// maxInputLength caps the user-supplied text for text-based analyses.
	maxInputLength = 50000
)

type analysisService struct {
	queries   *repository.Queries
	provider  ai.Provider
	artifacts ArtifactReader
	retrier   *resilience.Retrier
	logger    *slog.Logger
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(
	queries *repository.Queries,
	provider ai.Provider,
	artifacts ArtifactReader,
	retrier *resilience.Retrier,
	logger *slog.Logger,
) AnalysisService {
	return &analysisService{
		queries:   queries,
		provider:  provider,
		artifacts: artifacts,
		retrier:   retrier,
		logger:    logger,
	}
}

// =============================================================================
// Run
// =============================================================================

// Run executes an analysis end to end.
func (s *analysisService) Run(ctx context.Context, params RunAnalysisParams) (*domain.Analysis, error) {
	const op = "analysis.run"

	if params.Identity == nil || params.Identity.ID == "" {
		return nil, domain.Invalid(op, "An identity is required to run analyses")
	}
	if !params.Type.IsValid() {
		return nil, domain.Invalid(op, "Unknown analysis type: "+params.Type.String())
	}

	analyzeParams := ai.AnalyzeParams{
		Type:       params.Type,
		IdentityID: params.Identity.ID,
	}

	var artifact *domain.Artifact
	if requiresArtifact(params.Type) {
		if params.ArtifactID == nil {
			return nil, domain.Invalid(op, params.Type.String()+" analysis requires an uploaded artifact")
		}

		rc, a, err := s.artifacts.Read(ctx, *params.ArtifactID, params.Identity.ID)
		if err != nil {
			return nil, err
		}
		data, readErr := io.ReadAll(rc)
		rc.Close()
		if readErr != nil {
			return nil, domain.Internal(readErr, op, "failed to read artifact content")
		}

		artifact = a
		analyzeParams.ImageData = data
		analyzeParams.ContentType = a.ContentType
		analyzeParams.Input = params.Input
	} else {
		input := strings.TrimSpace(params.Input)
		if input == "" {
			return nil, domain.Invalid(op, params.Type.String()+" analysis requires text input")
		}
		if len(input) > maxInputLength {
			return nil, domain.Invalid(op, "Input is too long")
		}
		analyzeParams.Input = input
	}

	started := time.Now()
	completion, err := s.provider.Analyze(ctx, analyzeParams)
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("error").Inc()
		metrics.AnalysisCompleted(params.Type.String(), string(domain.AnalysisStatusFailed))
		s.recordFailure(ctx, params, artifact)
		return nil, translateProviderError(err, op)
	}
	metrics.AICallCompleted("success", completion.Usage.InputTokens, completion.Usage.OutputTokens, completion.Usage.CostCents)

	// The normalizer never fails; garbage model output degrades to a
	// fallback result rather than an error.
	normalized := ai.Normalize(params.Type, completion.Text)

	status := domain.AnalysisStatusCompleted
	if normalized.Outcome == ai.ParseFallback {
		status = domain.AnalysisStatusFallback
		metrics.ParseFallback(params.Type.String())
		s.logger.Warn("Model output could not be parsed, serving fallback",
			"type", params.Type,
			"identity_id", params.Identity.ID,
			"model", completion.Usage.Model,
		)
	}

	record, err := s.persist(ctx, params, artifact, status, normalized.Data, completion.Usage)
	if err != nil {
		// The provider call succeeded and a usage credit was already spent.
		// Losing one history row is preferable to failing the request.
		s.logger.Error("Failed to persist analysis result",
			"error", err,
			"type", params.Type,
			"identity_id", params.Identity.ID,
		)
		metrics.AnalysisCompleted(params.Type.String(), string(status))
		return s.unsavedAnalysis(params, artifact, status, normalized.Data, completion.Usage), nil
	}

	metrics.AnalysisCompleted(params.Type.String(), string(status))
	s.logger.Info("Analysis completed",
		"analysis_id", record.ID,
		"type", params.Type,
		"status", status,
		"identity_kind", params.Identity.Kind,
		"model", completion.Usage.Model,
		"input_tokens", completion.Usage.InputTokens,
		"output_tokens", completion.Usage.OutputTokens,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return record, nil
}

// =============================================================================
// GetByID
// =============================================================================

// GetByID retrieves an analysis owned by the given identity.
func (s *analysisService) GetByID(ctx context.Context, analysisID uuid.UUID, identityID string) (*domain.Analysis, error) {
	const op = "analysis.get"

	dbAnalysis, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) (repository.Analysis, error) {
		return s.queries.GetAnalysisByIDAndIdentity(ctx, repository.GetAnalysisByIDAndIdentityParams{
			ID:         analysisID,
			IdentityID: identityID,
		})
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "analysis", analysisID.String())
		}
		return nil, translateStoreError(err, op, "failed to fetch analysis")
	}

	return analysisToDomain(dbAnalysis), nil
}

// =============================================================================
// List
// =============================================================================

// List retrieves analysis history for an identity, newest first.
func (s *analysisService) List(ctx context.Context, identityID string, limit, offset int) ([]domain.Analysis, error) {
	const op = "analysis.list"

	if limit <= 0 {
		limit = analysisDefaultLimit
	}
	if limit > analysisMaxLimit {
		limit = analysisMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	dbAnalyses, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) ([]repository.Analysis, error) {
		return s.queries.ListAnalysesByIdentity(ctx, repository.ListAnalysesByIdentityParams{
			IdentityID: identityID,
			Limit:      int32(limit),
			Offset:     int32(offset),
		})
	})
	if err != nil {
		return nil, translateStoreError(err, op, "failed to fetch analyses")
	}

	analyses := make([]domain.Analysis, len(dbAnalyses))
	for i, dbAnalysis := range dbAnalyses {
		analyses[i] = *analysisToDomain(dbAnalysis)
	}

	return analyses, nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

// requiresArtifact returns true for analysis types that run against an
// uploaded file rather than pasted text.
func requiresArtifact(t domain.AnalysisType) bool {
	return t == domain.AnalysisTypeDocument || t == domain.AnalysisTypePhoto
}

// persist writes the analysis record with retry protection.
func (s *analysisService) persist(ctx context.Context, params RunAnalysisParams, artifact *domain.Artifact, status domain.AnalysisStatus, result []byte, usage ai.UsageInfo) (*domain.Analysis, error) {
	createParams := repository.CreateAnalysisParams{
		IdentityID:   params.Identity.ID,
		AnalysisType: string(params.Type),
		Status:       string(status),
		Result:       pqtype.NullRawMessage{RawMessage: result, Valid: result != nil},
		Model:        usage.Model,
		InputTokens:  int32(usage.InputTokens),
		OutputTokens: int32(usage.OutputTokens),
		CostCents:    int32(usage.CostCents),
	}
	if params.Identity.UserID != nil {
		createParams.UserID = uuid.NullUUID{UUID: *params.Identity.UserID, Valid: true}
	}
	if artifact != nil {
		createParams.ArtifactID = uuid.NullUUID{UUID: artifact.ID, Valid: true}
	}

	dbAnalysis, err := resilience.Do(ctx, s.retrier, "analysis.persist", func(ctx context.Context) (repository.Analysis, error) {
		return s.queries.CreateAnalysis(ctx, createParams)
	})
	if err != nil {
		return nil, err
	}

	return analysisToDomain(dbAnalysis), nil
}

// recordFailure writes a failed-analysis record. Best effort; the caller is
// already returning the provider error.
func (s *analysisService) recordFailure(ctx context.Context, params RunAnalysisParams, artifact *domain.Artifact) {
	createParams := repository.CreateAnalysisParams{
		IdentityID:   params.Identity.ID,
		AnalysisType: string(params.Type),
		Status:       string(domain.AnalysisStatusFailed),
	}
	if params.Identity.UserID != nil {
		createParams.UserID = uuid.NullUUID{UUID: *params.Identity.UserID, Valid: true}
	}
	if artifact != nil {
		createParams.ArtifactID = uuid.NullUUID{UUID: artifact.ID, Valid: true}
	}

	if _, err := s.queries.CreateAnalysis(ctx, createParams); err != nil {
		s.logger.Warn("Failed to record failed analysis", "error", err, "type", params.Type)
	}
}

// unsavedAnalysis builds a usable analysis result when persistence failed.
// The ID is zero since no row exists.
func (s *analysisService) unsavedAnalysis(params RunAnalysisParams, artifact *domain.Artifact, status domain.AnalysisStatus, result []byte, usage ai.UsageInfo) *domain.Analysis {
	a := &domain.Analysis{
		IdentityID:   params.Identity.ID,
		UserID:       params.Identity.UserID,
		Type:         params.Type,
		Status:       status,
		Result:       result,
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostCents:    usage.CostCents,
		CreatedAt:    time.Now().UTC(),
	}
	if artifact != nil {
		id := artifact.ID
		a.ArtifactID = &id
	}
	return a
}

// translateProviderError maps AI provider errors to domain errors.
func translateProviderError(err error, op string) error {
	switch {
	case errors.Is(err, ai.EAIInvalidInput):
		return domain.Wrap(err, domain.EINVALID, op, "The provided input could not be analyzed")
	case errors.Is(err, ai.EAIRateLimit), errors.Is(err, ai.EAITimeout), errors.Is(err, ai.EAIUnavailable):
		return domain.Wrap(err, domain.EUNAVAILABLE, op, "The analysis service is temporarily unavailable. Please try again shortly.")
	default:
		return domain.Internal(err, op, "analysis failed")
	}
}

// analysisToDomain converts a repository Analysis to a domain Analysis.
func analysisToDomain(dbAnalysis repository.Analysis) *domain.Analysis {
	a := &domain.Analysis{
		ID:           dbAnalysis.ID,
		IdentityID:   dbAnalysis.IdentityID,
		Type:         domain.AnalysisType(dbAnalysis.AnalysisType),
		Status:       domain.AnalysisStatus(dbAnalysis.Status),
		Model:        dbAnalysis.Model,
		InputTokens:  int(dbAnalysis.InputTokens),
		OutputTokens: int(dbAnalysis.OutputTokens),
		CostCents:    int(dbAnalysis.CostCents),
		CreatedAt:    dbAnalysis.CreatedAt,
	}
	if dbAnalysis.UserID.Valid {
		id := dbAnalysis.UserID.UUID
		a.UserID = &id
	}
	if dbAnalysis.ArtifactID.Valid {
		id := dbAnalysis.ArtifactID.UUID
		a.ArtifactID = &id
	}
	if dbAnalysis.Result.Valid {
		a.Result = dbAnalysis.Result.RawMessage
	}
	return a
}

// Package service contains business logic for the application.
//
// This file implements the artifact service for managing uploaded source
// files (document scans and photos).
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/repository"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/storage"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ArtifactService defines the interface for artifact-related operations.
type ArtifactService interface {
	// Upload stores an uploaded file and creates a database record.
	// For photo artifacts a thumbnail is generated and stored alongside
	// the original.
	// Returns domain.EINVALID for validation errors.
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, identity *domain.Identity, kind domain.ArtifactKind) (*domain.Artifact, error)

	// GetByID retrieves an artifact owned by the given identity.
	// Returns domain.ENOTFOUND if the artifact doesn't exist or belongs
	// to a different identity.
	GetByID(ctx context.Context, artifactID uuid.UUID, identityID string) (*domain.Artifact, error)

	// Read opens the stored artifact content for analysis.
	// The caller must close the returned reader.
	Read(ctx context.Context, artifactID uuid.UUID, identityID string) (io.ReadCloser, *domain.Artifact, error)

	// GetURL returns a presigned/public URL for the original artifact.
	GetURL(ctx context.Context, artifactID uuid.UUID, identityID string) (string, error)

	// GetThumbnailURL returns a presigned/public URL for the artifact
	// thumbnail. Returns domain.ENOTFOUND if the artifact has no thumbnail.
	GetThumbnailURL(ctx context.Context, artifactID uuid.UUID, identityID string) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// artifactService implements the ArtifactService interface.
type artifactService struct {
	queries            *repository.Queries
	storage            storage.Storage
	thumbnailProcessor ThumbnailProcessor
	logger             *slog.Logger
}

// NewArtifactService creates a new ArtifactService.
func NewArtifactService(
	queries *repository.Queries,
	storage storage.Storage,
	thumbnailProcessor ThumbnailProcessor,
	logger *slog.Logger,
) ArtifactService {
	return &artifactService{
		queries:            queries,
		storage:            storage,
		thumbnailProcessor: thumbnailProcessor,
		logger:             logger,
	}
}

// =============================================================================
// Upload
// =============================================================================

// Upload stores an uploaded file and creates a database record.
func (s *artifactService) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, identity *domain.Identity, kind domain.ArtifactKind) (*domain.Artifact, error) {
	const op = "artifact.upload"

	if identity == nil || identity.ID == "" {
		return nil, domain.Invalid(op, "An identity is required to upload artifacts")
	}
	if !kind.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("Unknown artifact kind: %s", kind))
	}

	// Validate file size before reading anything
	if header.Size > domain.MaxArtifactSize {
		return nil, domain.Invalid(op, fmt.Sprintf("File exceeds the maximum size of %dMB", domain.MaxArtifactSize/(1024*1024)))
	}
	if header.Size == 0 {
		return nil, domain.Invalid(op, "Uploaded file is empty")
	}

	// Detect content type from file header (read first 512 bytes)
	headerBytes := make([]byte, 512)
	n, err := file.Read(headerBytes)
	if err != nil && err != io.EOF {
		return nil, domain.Internal(err, op, "failed to read file header")
	}
	contentType := http.DetectContentType(headerBytes[:n])

	// Validate content type against the supported set
	if _, ok := domain.SupportedArtifactTypes[contentType]; !ok {
		return nil, domain.Invalid(op, fmt.Sprintf("Unsupported file type: %s. Supported types are JPEG, PNG, WebP, and PDF.", contentType))
	}

	// Photos must be images; PDFs only make sense as documents
	if kind == domain.ArtifactKindPhoto && !storage.IsImage(contentType) {
		return nil, domain.Invalid(op, "Photo artifacts must be image files")
	}

	// Reset file pointer to beginning after reading header
	if seeker, ok := file.(io.Seeker); ok {
		if _, err := seeker.Seek(0, 0); err != nil {
			return nil, domain.Internal(err, op, "failed to reset file pointer")
		}
	}

	// Read entire file into memory for processing
	fileData, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read file data")
	}

	// Generate thumbnail for photos
	var thumbnailBytes []byte
	if kind == domain.ArtifactKindPhoto {
		thumbnailBytes, _, _, err = s.thumbnailProcessor.GenerateThumbnail(
			bytes.NewReader(fileData),
			domain.ThumbnailMaxWidth,
			domain.ThumbnailMaxHeight,
		)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to generate thumbnail")
		}
	}

	// Generate storage keys
	storageKey := storage.ArtifactKey(identity.ID, header.Filename)
	thumbnailKey := ""
	if thumbnailBytes != nil {
		thumbnailKey = storage.ThumbnailKey(identity.ID)
	}

	// Upload original to storage
	if err := s.storage.Put(ctx, storageKey, bytes.NewReader(fileData), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     domain.MaxArtifactSize,
		Overwrite:   false,
		Public:      false,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to upload artifact")
	}

	// Upload thumbnail to storage
	if thumbnailKey != "" {
		if err := s.storage.Put(ctx, thumbnailKey, bytes.NewReader(thumbnailBytes), storage.PutOptions{
			ContentType: "image/jpeg",
			MaxSize:     0, // No limit for thumbnails
			Overwrite:   false,
			Public:      false,
		}); err != nil {
			// Clean up original on thumbnail upload failure
			_ = s.storage.Delete(ctx, storageKey)
			return nil, domain.Internal(err, op, "failed to upload thumbnail")
		}
	}

	// Create database record
	dbArtifact, err := s.queries.CreateArtifact(ctx, repository.CreateArtifactParams{
		IdentityID: identity.ID,
		Kind:       string(kind),
		StorageKey: storageKey,
		ThumbnailKey: sql.NullString{
			String: thumbnailKey,
			Valid:  thumbnailKey != "",
		},
		FileName:    header.Filename,
		ContentType: contentType,
		SizeBytes:   header.Size,
	})
	if err != nil {
		// Clean up storage on database error
		_ = s.storage.Delete(ctx, storageKey)
		if thumbnailKey != "" {
			_ = s.storage.Delete(ctx, thumbnailKey)
		}
		return nil, domain.Internal(err, op, "failed to create artifact record")
	}

	metrics.ArtifactUploaded(string(kind))
	s.logger.Info("artifact uploaded",
		"artifact_id", dbArtifact.ID,
		"identity_id", identity.ID,
		"kind", kind,
		"content_type", contentType,
		"size_bytes", header.Size,
	)

	return s.toDomain(dbArtifact), nil
}

// =============================================================================
// GetByID
// =============================================================================

// GetByID retrieves an artifact owned by the given identity.
func (s *artifactService) GetByID(ctx context.Context, artifactID uuid.UUID, identityID string) (*domain.Artifact, error) {
	const op = "artifact.get"

	dbArtifact, err := s.queries.GetArtifactByIDAndIdentity(ctx, repository.GetArtifactByIDAndIdentityParams{
		ID:         artifactID,
		IdentityID: identityID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "artifact", artifactID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch artifact")
	}

	return s.toDomain(dbArtifact), nil
}

// =============================================================================
// Read
// =============================================================================

// Read opens the stored artifact content for analysis.
func (s *artifactService) Read(ctx context.Context, artifactID uuid.UUID, identityID string) (io.ReadCloser, *domain.Artifact, error) {
	const op = "artifact.read"

	artifact, err := s.GetByID(ctx, artifactID, identityID)
	if err != nil {
		return nil, nil, err
	}

	rc, _, err := s.storage.Get(ctx, artifact.StorageKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil, domain.NotFound(op, "artifact content", artifact.StorageKey)
		}
		return nil, nil, domain.Internal(err, op, "failed to read artifact content")
	}

	return rc, artifact, nil
}

// =============================================================================
// URL Generation
// =============================================================================

// GetURL returns a presigned/public URL for the original artifact.
func (s *artifactService) GetURL(ctx context.Context, artifactID uuid.UUID, identityID string) (string, error) {
	const op = "artifact.url"

	artifact, err := s.GetByID(ctx, artifactID, identityID)
	if err != nil {
		return "", err
	}

	url, err := s.storage.URL(ctx, artifact.StorageKey, 1*time.Hour)
	if err != nil {
		return "", domain.Internal(err, op, "failed to generate artifact URL")
	}

	return url, nil
}

// GetThumbnailURL returns a presigned/public URL for the artifact thumbnail.
func (s *artifactService) GetThumbnailURL(ctx context.Context, artifactID uuid.UUID, identityID string) (string, error) {
	const op = "artifact.thumbnail_url"

	artifact, err := s.GetByID(ctx, artifactID, identityID)
	if err != nil {
		return "", err
	}

	if !artifact.HasThumbnail() {
		return "", domain.NotFound(op, "thumbnail", artifactID.String())
	}

	url, err := s.storage.URL(ctx, artifact.ThumbnailKey, 1*time.Hour)
	if err != nil {
		return "", domain.Internal(err, op, "failed to generate thumbnail URL")
	}

	return url, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// toDomain converts a repository Artifact to a domain Artifact.
func (s *artifactService) toDomain(dbArtifact repository.Artifact) *domain.Artifact {
	thumbnailKey := ""
	if dbArtifact.ThumbnailKey.Valid {
		thumbnailKey = dbArtifact.ThumbnailKey.String
	}

	return &domain.Artifact{
		ID:           dbArtifact.ID,
		IdentityID:   dbArtifact.IdentityID,
		Kind:         domain.ArtifactKind(dbArtifact.Kind),
		StorageKey:   dbArtifact.StorageKey,
		ThumbnailKey: thumbnailKey,
		FileName:     dbArtifact.FileName,
		ContentType:  dbArtifact.ContentType,
		SizeBytes:    dbArtifact.SizeBytes,
		CreatedAt:    dbArtifact.CreatedAt,
	}
}

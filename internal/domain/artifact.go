// Package domain contains core business types and interfaces.
//
// This file defines the Artifact domain type: an uploaded source file
// (scanned document or photograph) that an analysis runs against.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind distinguishes the two uploadable source types.
type ArtifactKind string

const (
	ArtifactKindDocument ArtifactKind = "document"
	ArtifactKindPhoto    ArtifactKind = "photo"
)

// IsValid returns true if the kind is a recognized value.
func (k ArtifactKind) IsValid() bool {
	return k == ArtifactKindDocument || k == ArtifactKindPhoto
}

// SupportedArtifactTypes maps accepted MIME types to human-readable names.
var SupportedArtifactTypes = map[string]string{
	"image/jpeg":      "JPEG",
	"image/png":       "PNG",
	"image/webp":      "WebP",
	"application/pdf": "PDF",
}

const (
	// MaxArtifactSize is the maximum allowed upload size (20MB).
	MaxArtifactSize = 20 * 1024 * 1024

	// ThumbnailMaxWidth is the maximum width for generated photo thumbnails.
	ThumbnailMaxWidth = 200

	// ThumbnailMaxHeight is the maximum height for generated photo thumbnails.
	ThumbnailMaxHeight = 200

	// ThumbnailJPEGQuality is the JPEG quality for thumbnail generation (0-100).
	ThumbnailJPEGQuality = 85
)

// Artifact represents an uploaded source file.
type Artifact struct {
	ID           uuid.UUID
	IdentityID   string // owner identity (user or anonymous)
	Kind         ArtifactKind
	StorageKey   string // key in the storage backend
	ThumbnailKey string // set for photos only
	FileName     string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

// HasThumbnail returns true if a thumbnail was generated for this artifact.
func (a *Artifact) HasThumbnail() bool {
	return a.ThumbnailKey != ""
}

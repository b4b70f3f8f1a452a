// Package domain contains core business types and interfaces.
//
// This file defines the analysis types the platform offers and the stored
// analysis record. Each analysis type is a separately metered operation.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisType identifies a category of AI-assisted genealogy analysis.
type AnalysisType string

const (
	AnalysisTypeDocument   AnalysisType = "document"
	AnalysisTypeDNA        AnalysisType = "dna"
	AnalysisTypeFamilyTree AnalysisType = "family_tree"
	AnalysisTypePhoto      AnalysisType = "photo"
	AnalysisTypeResearch   AnalysisType = "research"
)

// AnalysisTypes lists every metered analysis type.
var AnalysisTypes = []AnalysisType{
	AnalysisTypeDocument,
	AnalysisTypeDNA,
	AnalysisTypeFamilyTree,
	AnalysisTypePhoto,
	AnalysisTypeResearch,
}

// String returns the string representation of the analysis type.
func (t AnalysisType) String() string {
	return string(t)
}

// IsValid returns true if the analysis type is a recognized value.
func (t AnalysisType) IsValid() bool {
	switch t {
	case AnalysisTypeDocument, AnalysisTypeDNA, AnalysisTypeFamilyTree,
		AnalysisTypePhoto, AnalysisTypeResearch:
		return true
	}
	return false
}

// ParseAnalysisType converts a string to an AnalysisType.
// Returns EINVALID if the value is not a recognized type.
func ParseAnalysisType(s string) (AnalysisType, error) {
	t := AnalysisType(s)
	if !t.IsValid() {
		return "", Invalid("analysis.parse_type", "unknown analysis type: "+s)
	}
	return t, nil
}

// AnalysisStatus represents the state of a stored analysis.
type AnalysisStatus string

const (
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFallback  AnalysisStatus = "fallback" // model output could not be parsed
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// Analysis represents a completed analysis run: who asked for it, what was
// analyzed, and the normalized model output.
type Analysis struct {
	ID         uuid.UUID
	IdentityID string
	UserID     *uuid.UUID // nil for anonymous identities
	Type       AnalysisType
	Status     AnalysisStatus
	ArtifactID *uuid.UUID // uploaded source file, when the type has one
	Result     json.RawMessage
	// Model accounting, carried from the AI provider.
	Model        string
	InputTokens  int
	OutputTokens int
	CostCents    int
	CreatedAt    time.Time
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
)

// Provider is the boundary to an external AI model. It returns the
// model's raw text untouched; the normalizer is the sole adapter that
// turns that text into a structured result.
type Provider interface {
	Analyze(ctx context.Context, params AnalyzeParams) (*Completion, error)
}

// AnalyzeParams contains the inputs for one analysis call
type AnalyzeParams struct {
	Type        domain.AnalysisType // Which kind of analysis to run
	Input       string              // User-supplied text (DNA data, tree export, research question)
	ImageData   []byte              // Raw artifact bytes for document/photo analyses
	ContentType string              // MIME type of ImageData when present
	IdentityID  string              // Identity for usage attribution
}

// Completion is the raw outcome of a provider call
type Completion struct {
	Text  string    // Raw model output, unparsed
	Usage UsageInfo // Token usage and cost information
}

// UsageInfo tracks API usage for billing and monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the input format or content is invalid
	EAIInvalidInput = errors.New("invalid analysis input")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

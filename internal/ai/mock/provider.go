package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	AnalyzeResponse *ai.Completion
	AnalyzeError    error

	// Call tracking for testing
	AnalyzeCalls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Analyze returns a canned raw response for the requested analysis type
func (p *Provider) Analyze(ctx context.Context, params ai.AnalyzeParams) (*ai.Completion, error) {
	p.AnalyzeCalls++

	// If a custom response or error is set, use it
	if p.AnalyzeError != nil {
		return nil, p.AnalyzeError
	}
	if p.AnalyzeResponse != nil {
		return p.AnalyzeResponse, nil
	}

	p.logger.Debug("Mock AI analysis", "type", params.Type, "identity_id", params.IdentityID)

	text, ok := cannedResponses[params.Type]
	if !ok {
		text = cannedResponses[domain.AnalysisTypeResearch]
	}

	return &ai.Completion{
		Text: text,
		Usage: ai.UsageInfo{
			Model:        "mock",
			InputTokens:  250,
			OutputTokens: 180,
			CostCents:    0,
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// Canned responses are wrapped in markdown fences on purpose so the
// normalizer's fence stripping gets exercised in development.
var cannedResponses = map[domain.AnalysisType]string{
	domain.AnalysisTypeDocument: "```json\n" + `{
  "summary": "1910 United States federal census page listing the Hartwell household of Marion County, Ohio.",
  "people": ["Samuel Hartwell (head)", "Eliza Hartwell (wife)", "Clara Hartwell (daughter)"],
  "dates": ["1874 (Samuel, birth year, calculated)", "15 April 1910 (enumeration date)"],
  "places": ["Marion County, Ohio (residence)", "Pennsylvania (Samuel, birthplace)"],
  "events": ["Samuel and Eliza married approximately 1898 (12 years married)"],
  "suggestions": ["Search the 1900 census for the Hartwell household to confirm the marriage year"]
}` + "\n```",

	domain.AnalysisTypeDNA: "```json\n" + `{
  "summary": "The results point to predominantly northwestern European ancestry with a smaller Scandinavian component.",
  "ethnicity_estimates": [
    {"region": "England and Northwestern Europe", "percent": 62.0},
    {"region": "Scotland", "percent": 24.0},
    {"region": "Norway", "percent": 14.0}
  ],
  "migration_patterns": ["Consistent with 18th-century migration from the Scottish Lowlands to Ulster and onward to North America"],
  "suggestions": ["Review DNA matches sharing 30cM or more for common surnames from the Scottish Borders"]
}` + "\n```",

	domain.AnalysisTypeFamilyTree: "```json\n" + `{
  "summary": "Four-generation tree centered on the Okafor line, roughly 1850 to present, well documented on the paternal side.",
  "gaps": ["No parents recorded for Adaeze Okafor (born about 1861)"],
  "inconsistencies": ["Chidi Okafor's death (1899) predates the recorded birth of his daughter Ngozi (1903)"],
  "suggestions": ["Resolve the Chidi/Ngozi conflict first; re-examine the source for Ngozi's birth year"]
}` + "\n```",

	domain.AnalysisTypePhoto: "```json\n" + `{
  "summary": "Studio portrait of a seated woman in formal dress, printed as a cabinet card.",
  "era_estimate": "1885-1895, based on the cabinet card format and leg-of-mutton sleeves",
  "clothing_notes": "High collar, fitted bodice, and full upper sleeves typical of early-1890s fashion",
  "location_clues": ["Photographer's imprint reading 'Lindqvist, Duluth' at the base of the mount"],
  "suggestions": ["Check Duluth city directories for the Lindqvist studio's years of operation to narrow the date"]
}` + "\n```",

	domain.AnalysisTypeResearch: "```json\n" + `{
  "answer": "Civil registration of births in England began on 1 July 1837; before that date, baptisms in parish registers are the primary birth evidence.",
  "sources": ["England and Wales civil registration indexes (GRO)", "Church of England parish registers"],
  "suggestions": ["Order the GRO index entry for the birth, then locate the corresponding baptism to confirm parents"]
}` + "\n```",
}

package ai

import (
	"encoding/json"
	"strings"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
)

// Outcome tags how a normalized result was produced, so callers must
// branch explicitly instead of trusting an implicit shape.
type Outcome string

const (
	// ParseSuccess means the model output parsed as the expected JSON shape
	ParseSuccess Outcome = "parsed"

	// ParseFallback means the output was unusable and a static fallback
	// structure was substituted
	ParseFallback Outcome = "fallback"
)

// Normalized is the structurally guaranteed result of normalizing raw
// model text. Data is always a valid JSON object with every field the
// analysis type requires; it is never null.
type Normalized struct {
	Outcome  Outcome
	Data     json.RawMessage
	Warnings []string
}

const fallbackMessage = "Automated analysis could not be completed for this request. The response from the analysis service was unreadable. Please try again."

// resultShapes defines the required fields per analysis type. A true
// value means the field is an array, false means a string.
var resultShapes = map[domain.AnalysisType]map[string]bool{
	domain.AnalysisTypeDocument: {
		"summary":     false,
		"people":      true,
		"dates":       true,
		"places":      true,
		"events":      true,
		"suggestions": true,
	},
	domain.AnalysisTypeDNA: {
		"summary":            false,
		"ethnicity_estimates": true,
		"migration_patterns": true,
		"suggestions":        true,
	},
	domain.AnalysisTypeFamilyTree: {
		"summary":         false,
		"gaps":            true,
		"inconsistencies": true,
		"suggestions":     true,
	},
	domain.AnalysisTypePhoto: {
		"summary":        false,
		"era_estimate":   false,
		"clothing_notes": false,
		"location_clues": true,
		"suggestions":    true,
	},
	domain.AnalysisTypeResearch: {
		"answer":      false,
		"sources":     true,
		"suggestions": true,
	},
}

// Normalize turns raw model output into a structurally valid result.
// It never fails: unparseable input yields a fallback object with the
// full expected shape and an explanatory message.
func Normalize(analysisType domain.AnalysisType, raw string) Normalized {
	var warnings []string

	cleaned := stripFences(raw)

	obj, ok := parseObject(cleaned)
	if !ok {
		// The direct parse failed. The model may have wrapped the JSON
		// in prose; try the first balanced brace span.
		if span, found := extractBalanced(cleaned); found {
			obj, ok = parseObject(span)
			if ok {
				warnings = append(warnings, "Response contained text outside the JSON object; surrounding content was ignored.")
			}
		}
	}

	if !ok {
		obj = fallbackObject(analysisType)
		warnings = append(warnings, "The analysis service returned an unreadable response; showing a placeholder result.")
		data, _ := json.Marshal(obj)
		return Normalized{Outcome: ParseFallback, Data: data, Warnings: warnings}
	}

	fillDefaults(analysisType, obj)
	warnings = append(warnings, heuristicWarnings(analysisType, obj)...)
	prependSuggestionWarnings(obj, warnings)

	data, err := json.Marshal(obj)
	if err != nil {
		// Marshal of a map built from unmarshalled JSON cannot fail in
		// practice, but the contract forbids surfacing an error.
		obj = fallbackObject(analysisType)
		data, _ = json.Marshal(obj)
		return Normalized{Outcome: ParseFallback, Data: data, Warnings: append(warnings, fallbackMessage)}
	}

	return Normalized{Outcome: ParseSuccess, Data: data, Warnings: warnings}
}

// stripFences removes a leading ```json (or bare ```) line and a
// trailing ``` line if present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func parseObject(s string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

// extractBalanced returns the first balanced {...} span, accounting
// for braces inside string literals and escapes.
func extractBalanced(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// fillDefaults ensures every required field is present with a neutral
// value so downstream consumers can rely on the full shape.
func fillDefaults(analysisType domain.AnalysisType, obj map[string]interface{}) {
	shape, ok := resultShapes[analysisType]
	if !ok {
		return
	}
	for field, isArray := range shape {
		v, present := obj[field]
		if present && v != nil {
			continue
		}
		if isArray {
			obj[field] = []interface{}{}
		} else {
			obj[field] = ""
		}
	}
}

func fallbackObject(analysisType domain.AnalysisType) map[string]interface{} {
	obj := map[string]interface{}{}
	shape, ok := resultShapes[analysisType]
	if !ok {
		shape = map[string]bool{"summary": false, "suggestions": true}
	}
	for field, isArray := range shape {
		if isArray {
			obj[field] = []interface{}{}
		} else {
			obj[field] = ""
		}
	}
	// The explanatory message goes in the primary text field.
	if _, ok := shape["answer"]; ok {
		obj["answer"] = fallbackMessage
	} else {
		obj["summary"] = fallbackMessage
	}
	return obj
}

// heuristicWarnings runs advisory cross-checks on the parsed data.
// They never alter the parsed fields; the raw model output stays
// authoritative.
func heuristicWarnings(analysisType domain.AnalysisType, obj map[string]interface{}) []string {
	var warnings []string

	if analysisType == domain.AnalysisTypeDNA {
		if estimates, ok := obj["ethnicity_estimates"].([]interface{}); ok {
			total := 0.0
			for _, e := range estimates {
				m, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				if p, ok := m["percent"].(float64); ok {
					total += p
				}
			}
			if total > 105 {
				warnings = append(warnings, "Ethnicity percentages sum to more than 100; treat the breakdown as approximate.")
			}
		}
	}

	if text := primaryText(analysisType, obj); text != "" {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "i cannot") || strings.Contains(lower, "i'm unable") || strings.Contains(lower, "i am unable") {
			warnings = append(warnings, "The analysis indicates low confidence in its own result.")
		}
	}

	return warnings
}

func primaryText(analysisType domain.AnalysisType, obj map[string]interface{}) string {
	field := "summary"
	if analysisType == domain.AnalysisTypeResearch {
		field = "answer"
	}
	s, _ := obj[field].(string)
	return s
}

// prependSuggestionWarnings surfaces warnings to the end user by
// placing them ahead of the model's own suggestions.
func prependSuggestionWarnings(obj map[string]interface{}, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	existing, _ := obj["suggestions"].([]interface{})
	merged := make([]interface{}, 0, len(warnings)+len(existing))
	for _, w := range warnings {
		merged = append(merged, "Note: "+w)
	}
	merged = append(merged, existing...)
	obj["suggestions"] = merged
}

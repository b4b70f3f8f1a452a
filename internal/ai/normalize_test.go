package ai

import (
	"encoding/json"
	"testing"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data json.RawMessage) map[string]interface{} {
	t.Helper()
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &obj))
	return obj
}

func TestNormalize_FencedJSON(t *testing.T) {
	raw := "```json\n{\"summary\": \"A 1910 census record.\", \"people\": [\"John Smith\"], \"dates\": [\"1910\"], \"places\": [\"Ohio\"], \"events\": [], \"suggestions\": []}\n```"

	result := Normalize(domain.AnalysisTypeDocument, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	assert.Empty(t, result.Warnings)

	obj := decode(t, result.Data)
	assert.Equal(t, "A 1910 census record.", obj["summary"])
	assert.Equal(t, []interface{}{"John Smith"}, obj["people"])
}

func TestNormalize_BareFence(t *testing.T) {
	raw := "```\n{\"summary\": \"ok\", \"people\": [], \"dates\": [], \"places\": [], \"events\": [], \"suggestions\": []}\n```"

	result := Normalize(domain.AnalysisTypeDocument, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	assert.Equal(t, "ok", decode(t, result.Data)["summary"])
}

func TestNormalize_SurroundingProse(t *testing.T) {
	raw := `Here is the analysis you requested:

{"answer": "The surname likely originates in Bavaria.", "sources": [], "suggestions": []}

Let me know if you need more detail.`

	result := Normalize(domain.AnalysisTypeResearch, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "outside the JSON object")

	obj := decode(t, result.Data)
	assert.Equal(t, "The surname likely originates in Bavaria.", obj["answer"])

	// Warnings surface ahead of the model's own suggestions.
	suggestions := obj["suggestions"].([]interface{})
	require.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions[0].(string), "Note:")
}

func TestNormalize_BracesInsideStrings(t *testing.T) {
	raw := `noise {"summary": "contains {braces} and \"quotes\"", "people": [], "dates": [], "places": [], "events": [], "suggestions": []} trailing`

	result := Normalize(domain.AnalysisTypeDocument, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	obj := decode(t, result.Data)
	assert.Equal(t, `contains {braces} and "quotes"`, obj["summary"])
}

func TestNormalize_GarbageFallsBack(t *testing.T) {
	result := Normalize(domain.AnalysisTypeDNA, "I'm sorry, something went wrong and no JSON is available")

	assert.Equal(t, ParseFallback, result.Outcome)
	require.NotEmpty(t, result.Warnings)

	obj := decode(t, result.Data)
	// Every required field is present with a neutral default.
	assert.NotEmpty(t, obj["summary"])
	assert.NotNil(t, obj["ethnicity_estimates"])
	assert.NotNil(t, obj["migration_patterns"])
	assert.NotNil(t, obj["suggestions"])
}

func TestNormalize_EmptyInputFallsBack(t *testing.T) {
	result := Normalize(domain.AnalysisTypePhoto, "")

	assert.Equal(t, ParseFallback, result.Outcome)
	obj := decode(t, result.Data)
	for _, field := range []string{"summary", "era_estimate", "clothing_notes", "location_clues", "suggestions"} {
		_, present := obj[field]
		assert.True(t, present, "missing field %s", field)
	}
}

func TestNormalize_FillsMissingFields(t *testing.T) {
	result := Normalize(domain.AnalysisTypeFamilyTree, `{"summary": "Three generations traced."}`)

	assert.Equal(t, ParseSuccess, result.Outcome)
	obj := decode(t, result.Data)
	assert.Equal(t, []interface{}{}, obj["gaps"])
	assert.Equal(t, []interface{}{}, obj["inconsistencies"])
	assert.Equal(t, []interface{}{}, obj["suggestions"])
}

func TestNormalize_NullFieldsReplaced(t *testing.T) {
	result := Normalize(domain.AnalysisTypeResearch, `{"answer": null, "sources": null, "suggestions": []}`)

	assert.Equal(t, ParseSuccess, result.Outcome)
	obj := decode(t, result.Data)
	assert.Equal(t, "", obj["answer"])
	assert.Equal(t, []interface{}{}, obj["sources"])
}

func TestNormalize_EthnicityPercentWarning(t *testing.T) {
	raw := `{"summary": "Mostly European ancestry.", "ethnicity_estimates": [{"region": "Ireland", "percent": 80}, {"region": "Italy", "percent": 45}], "migration_patterns": [], "suggestions": []}`

	result := Normalize(domain.AnalysisTypeDNA, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "more than 100")

	// The parsed estimates themselves are untouched.
	obj := decode(t, result.Data)
	estimates := obj["ethnicity_estimates"].([]interface{})
	assert.Len(t, estimates, 2)
}

func TestNormalize_LowConfidenceWarning(t *testing.T) {
	raw := `{"answer": "I cannot determine the origin from the information given.", "sources": [], "suggestions": []}`

	result := Normalize(domain.AnalysisTypeResearch, raw)

	assert.Equal(t, ParseSuccess, result.Outcome)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "low confidence")
}

func TestNormalize_NeverReturnsNilData(t *testing.T) {
	inputs := []string{"", "null", "[]", "not json", "{broken", "```json\n```"}
	for _, in := range inputs {
		result := Normalize(domain.AnalysisTypeDocument, in)
		require.NotNil(t, result.Data, "input %q", in)

		var obj map[string]interface{}
		require.NoError(t, json.Unmarshal(result.Data, &obj), "input %q", in)
		assert.NotNil(t, obj, "input %q", in)
	}
}

package metrics

// GateAllowed records an access gate decision that let the request through.
func GateAllowed() {
	GateDecisionsTotal.WithLabelValues("allowed").Inc()
}

// GateRefused records an access gate refusal. The code is the gate error
// code in lowercase ("rate_limited", "signup_required", "upgrade_required").
func GateRefused(code string) {
	GateDecisionsTotal.WithLabelValues(code).Inc()
}

// RateLimitDenied records a rate limit denial for the given scope.
func RateLimitDenied(scope string) {
	RateLimitDenialsTotal.WithLabelValues(scope).Inc()
}

// AnalysisCompleted records a finished analysis run.
func AnalysisCompleted(analysisType, status string) {
	AnalysesTotal.WithLabelValues(analysisType, status).Inc()
}

// ParseFallback records an AI response that could not be parsed and fell
// back to the static structure.
func ParseFallback(analysisType string) {
	ParseFallbacksTotal.WithLabelValues(analysisType).Inc()
}

// ArtifactUploaded records a stored artifact upload.
func ArtifactUploaded(kind string) {
	ArtifactsUploaded.WithLabelValues(kind).Inc()
}

// AICallCompleted records an AI API call outcome and its token usage.
func AICallCompleted(status string, inputTokens, outputTokens, costCents int) {
	AIAPICalls.WithLabelValues(status).Inc()
	AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	AICostCentsTotal.Add(float64(costCents))
}

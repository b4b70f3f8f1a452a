// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers and their monthly per-analysis-type
// limits. Limits are static configuration, read-only at runtime.
package domain

// Tier represents the pricing tier of a subscription.
type Tier string

const (
	TierFree         Tier = "free"
	TierExplorer     Tier = "explorer"
	TierResearcher   Tier = "researcher"
	TierProfessional Tier = "professional"
)

// Limit sentinels.
const (
	// LimitUnlimited marks an analysis type with no monthly cap.
	LimitUnlimited = -1

	// LimitDisabled marks an analysis type not included in the plan.
	LimitDisabled = 0
)

// TierLimits maps each tier to its monthly limit per analysis type.
// -1 means unlimited, 0 means the feature is not available in the plan.
//
// Anonymous visitors are metered against the free tier.
var TierLimits = map[Tier]map[AnalysisType]int{
	TierFree: {
		AnalysisTypeDocument:   5,
		AnalysisTypeDNA:        2,
		AnalysisTypeFamilyTree: 3,
		AnalysisTypePhoto:      5,
		AnalysisTypeResearch:   LimitDisabled,
	},
	TierExplorer: {
		AnalysisTypeDocument:   50,
		AnalysisTypeDNA:        20,
		AnalysisTypeFamilyTree: 30,
		AnalysisTypePhoto:      50,
		AnalysisTypeResearch:   25,
	},
	TierResearcher: {
		AnalysisTypeDocument:   200,
		AnalysisTypeDNA:        100,
		AnalysisTypeFamilyTree: LimitUnlimited,
		AnalysisTypePhoto:      200,
		AnalysisTypeResearch:   100,
	},
	TierProfessional: {
		AnalysisTypeDocument:   LimitUnlimited,
		AnalysisTypeDNA:        LimitUnlimited,
		AnalysisTypeFamilyTree: LimitUnlimited,
		AnalysisTypePhoto:      LimitUnlimited,
		AnalysisTypeResearch:   LimitUnlimited,
	},
}

// IsValid returns true if the tier is a recognized value.
func (t Tier) IsValid() bool {
	_, ok := TierLimits[t]
	return ok
}

// LimitFor returns the monthly limit for a tier and analysis type.
// Unknown tiers fall back to the free tier, matching the billing layer's
// behavior for lapsed or unrecognized subscriptions.
func LimitFor(tier Tier, analysisType AnalysisType) int {
	limits, ok := TierLimits[tier]
	if !ok {
		limits = TierLimits[TierFree]
	}
	limit, ok := limits[analysisType]
	if !ok {
		return LimitDisabled
	}
	return limit
}

// ParseTier converts a string to a Tier, defaulting to free for unknown values.
func ParseTier(s string) Tier {
	t := Tier(s)
	if !t.IsValid() {
		return TierFree
	}
	return t
}

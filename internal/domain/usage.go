// Package domain contains core business types and interfaces.
//
// This file defines usage metering types: the persistent monthly counter and
// the result of a quota check.
package domain

import "time"

// UsageCounter is the persistent monthly counter for one identity and
// analysis type. Counters are created lazily on first increment, mutated only
// by atomic increment, and never deleted (retained for history).
type UsageCounter struct {
	IdentityID  string
	Type        AnalysisType
	PeriodStart time.Time // first instant of the UTC month
	Count       int
	UpdatedAt   time.Time
}

// UsageCheck is the outcome of a quota check for a single analysis type.
type UsageCheck struct {
	HasAccess    bool   `json:"hasAccess"`
	CurrentUsage int    `json:"current"`
	Limit        int    `json:"limit"`     // -1 = unlimited
	Remaining    int    `json:"remaining"` // -1 = unlimited
	IsAtLimit    bool   `json:"isAtLimit"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// UsageSnapshot reports current-period usage across every analysis type.
type UsageSnapshot struct {
	IdentityID  string                      `json:"-"`
	Tier        Tier                        `json:"tier"`
	PeriodStart time.Time                   `json:"periodStart"`
	ByType      map[AnalysisType]UsageCheck `json:"byType"`
}

// CurrentPeriodStart returns the first instant of the current UTC month.
// All usage counters key on this boundary.
func CurrentPeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Package domain contains core business types and interfaces.
//
// This file defines the access gate's decision type: the single value the
// HTTP layer needs to either proceed with an analysis or refuse it.
package domain

import "time"

// GateErrorCode identifies why the gate refused a request. The values are
// part of the API contract and map directly to HTTP statuses.
type GateErrorCode string

const (
	// GateRateLimited maps to 429. The caller may retry after RetryAfter.
	GateRateLimited GateErrorCode = "RATE_LIMITED"

	// GateSignupRequired maps to 401. Anonymous visitors who exhaust the
	// free allowance are asked to create an account.
	GateSignupRequired GateErrorCode = "SIGNUP_REQUIRED"

	// GateUpgradeRequired maps to 402. Registered users at their tier
	// limit are asked to upgrade.
	GateUpgradeRequired GateErrorCode = "UPGRADE_REQUIRED"
)

// AccessDecision is the terminal outcome of evaluating one request.
// Exactly one of Allowed or ErrorCode is meaningful: when Allowed is false,
// ErrorCode says why and UpgradeMessage carries the actionable prompt.
type AccessDecision struct {
	Allowed        bool
	Identity       *Identity
	Usage          *UsageCheck
	ErrorCode      GateErrorCode
	UpgradeMessage string

	// RetryAfter is set only for rate limit refusals.
	RetryAfter time.Duration
}

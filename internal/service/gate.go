// Package service contains the business logic layer.
//
// This file implements the access gate: the single decision point a request
// passes before an analysis runs. Checks are strictly ordered, rate limit
// first, then usage, so abusive traffic never reaches the metering layer.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/ratelimit"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageChecker is the slice of UsageService the gate depends on.
type UsageChecker interface {
	CheckAndReserve(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error)
}

// GateParams carries the request facts the gate evaluates.
type GateParams struct {
	Identity *domain.Identity
	Type     domain.AnalysisType

	// Rate limit keys. IP is always set; Endpoint is the route prefix.
	IP       string
	Endpoint string
}

// GateService evaluates whether a request may run an analysis.
type GateService interface {
	// Evaluate returns a terminal decision for the request. A refusal is a
	// decision, not an error; errors are reserved for infrastructure
	// failures the caller cannot act on.
	Evaluate(ctx context.Context, params GateParams) (*domain.AccessDecision, error)
}

// =============================================================================
// Implementation
// =============================================================================

type gateService struct {
	limiter *ratelimit.MultiLimiter
	usage   UsageChecker
	logger  *slog.Logger
}

// NewGateService creates a new GateService.
func NewGateService(limiter *ratelimit.MultiLimiter, usage UsageChecker, logger *slog.Logger) GateService {
	return &gateService{
		limiter: limiter,
		usage:   usage,
		logger:  logger,
	}
}

// Evaluate runs the per-request state machine: resolve keys, consult the
// rate limiter, then check and reserve usage.
func (s *gateService) Evaluate(ctx context.Context, params GateParams) (*domain.AccessDecision, error) {
	const op = "gate.evaluate"

	if params.Identity == nil {
		return nil, domain.Invalid(op, "identity is required")
	}
	if !params.Type.IsValid() {
		return nil, domain.Invalid(op, "unknown analysis type: "+params.Type.String())
	}

	identity := params.Identity

	// Rate limit before any storage I/O. The user scope only applies to
	// authenticated requests; anonymous traffic is keyed by IP alone.
	keys := ratelimit.Keys{
		IP:       params.IP,
		Endpoint: params.Endpoint,
	}
	if identity.Kind == domain.IdentityKindUser {
		keys.User = identity.ID
	}

	if d := s.limiter.Check(keys); !d.Allowed {
		s.logger.Info("Request rate limited",
			"scope", d.Scope,
			"identity_kind", identity.Kind,
			"type", params.Type,
		)
		metrics.RateLimitDenied(string(d.Scope))
		metrics.GateRefused("rate_limited")
		return &domain.AccessDecision{
			Allowed:        false,
			Identity:       identity,
			ErrorCode:      domain.GateRateLimited,
			UpgradeMessage: "Too many requests. Please slow down and try again.",
			RetryAfter:     d.RetryAfter,
		}, nil
	}

	check, err := s.usage.CheckAndReserve(ctx, identity, params.Type)
	if err != nil {
		return nil, err
	}

	if !check.HasAccess {
		return s.refuse(identity, params.Type, check), nil
	}

	metrics.GateAllowed()
	return &domain.AccessDecision{
		Allowed:  true,
		Identity: identity,
		Usage:    check,
	}, nil
}

// refuse maps an exhausted or disabled usage check to the caller-facing
// decision: anonymous visitors are asked to sign up, users to upgrade.
func (s *gateService) refuse(identity *domain.Identity, analysisType domain.AnalysisType, check *domain.UsageCheck) *domain.AccessDecision {
	decision := &domain.AccessDecision{
		Allowed:  false,
		Identity: identity,
		Usage:    check,
	}

	if identity.IsAnonymous() {
		metrics.GateRefused("signup_required")
		decision.ErrorCode = domain.GateSignupRequired
		decision.UpgradeMessage = fmt.Sprintf(
			"You've used your free %s analyses for this month. Create a free account to keep your research history and unlock more.",
			analysisType)
		return decision
	}

	metrics.GateRefused("upgrade_required")
	decision.ErrorCode = domain.GateUpgradeRequired
	if check.Limit == domain.LimitDisabled {
		decision.UpgradeMessage = fmt.Sprintf(
			"%s analysis is not included in your current plan. Upgrade to unlock it.",
			analysisType)
	} else {
		decision.UpgradeMessage = fmt.Sprintf(
			"You've reached your monthly limit of %d %s analyses. Upgrade your plan for a higher allowance.",
			check.Limit, analysisType)
	}
	return decision
}

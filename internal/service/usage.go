// Package service contains the business logic layer.
//
// This file implements the usage ledger: monthly per-identity, per-analysis
// metering against the subscription tier's limits.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/repository"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/resilience"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService meters analysis consumption against monthly tier limits.
type UsageService interface {
	// CheckAndReserve checks whether the identity may run one more analysis
	// of the given type and, if so, reserves the slot by incrementing the
	// counter immediately. The increment is pessimistic: a downstream
	// failure after a successful reservation still consumes quota.
	CheckAndReserve(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error)

	// Peek reports the current check result without incrementing anything.
	Peek(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error)

	// Snapshot reports current-period usage across every analysis type.
	Snapshot(ctx context.Context, identity *domain.Identity) (*domain.UsageSnapshot, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	queries *repository.Queries
	retrier *resilience.Retrier
	logger  *slog.Logger
	now     func() time.Time
}

// NewUsageService creates a new UsageService. Database calls run through
// the retrier so transient connectivity failures are absorbed.
func NewUsageService(queries *repository.Queries, retrier *resilience.Retrier, logger *slog.Logger) UsageService {
	return &usageService{
		queries: queries,
		retrier: retrier,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckAndReserve performs the limit check and increment as one atomic
// conditional upsert, closing the race where two concurrent requests both
// pass a separate pre-check.
func (s *usageService) CheckAndReserve(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error) {
	const op = "usage.check_and_reserve"

	if identity == nil {
		return nil, domain.Invalid(op, "identity is required")
	}
	if !analysisType.IsValid() {
		return nil, domain.Invalid(op, "unknown analysis type: "+analysisType.String())
	}

	limit := domain.LimitFor(identity.Tier, analysisType)

	// Disabled in this plan: terminal, no counter touched.
	if limit == domain.LimitDisabled {
		return disabledCheck(identity.Tier, analysisType), nil
	}

	period := domain.CurrentPeriodStart(s.now())

	// Unlimited: track consumption for history but never enforce.
	if limit == domain.LimitUnlimited {
		count, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) (int32, error) {
			return s.queries.IncrementUsage(ctx, repository.IncrementUsageParams{
				IdentityID:   identity.ID,
				AnalysisType: analysisType.String(),
				PeriodStart:  period,
			})
		})
		if err != nil {
			return nil, translateStoreError(err, op, "failed to record usage")
		}
		return &domain.UsageCheck{
			HasAccess:    true,
			CurrentUsage: int(count),
			Limit:        domain.LimitUnlimited,
			Remaining:    domain.LimitUnlimited,
		}, nil
	}

	type reservation struct {
		count   int32
		granted bool
	}
	res, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) (reservation, error) {
		count, granted, err := s.queries.ReserveUsage(ctx, repository.ReserveUsageParams{
			IdentityID:   identity.ID,
			AnalysisType: analysisType.String(),
			PeriodStart:  period,
			Limit:        int32(limit),
		})
		return reservation{count: count, granted: granted}, err
	})
	if err != nil {
		return nil, translateStoreError(err, op, "failed to reserve usage")
	}

	if !res.granted {
		s.logger.Info("Usage limit reached",
			"identity_kind", identity.Kind,
			"type", analysisType,
			"tier", identity.Tier,
			"used", res.count,
			"limit", limit,
		)
		return limitReachedCheck(identity, analysisType, int(res.count), limit), nil
	}

	return &domain.UsageCheck{
		HasAccess:    true,
		CurrentUsage: int(res.count),
		Limit:        limit,
		Remaining:    limit - int(res.count),
		IsAtLimit:    int(res.count) >= limit,
	}, nil
}

// Peek reads the current counter without reserving.
func (s *usageService) Peek(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error) {
	const op = "usage.peek"

	if identity == nil {
		return nil, domain.Invalid(op, "identity is required")
	}

	limit := domain.LimitFor(identity.Tier, analysisType)
	if limit == domain.LimitDisabled {
		return disabledCheck(identity.Tier, analysisType), nil
	}

	period := domain.CurrentPeriodStart(s.now())
	count, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) (int32, error) {
		return s.queries.GetUsageCount(ctx, repository.GetUsageCountParams{
			IdentityID:   identity.ID,
			AnalysisType: analysisType.String(),
			PeriodStart:  period,
		})
	})
	if err != nil {
		return nil, translateStoreError(err, op, "failed to read usage")
	}

	return buildCheck(identity, analysisType, int(count), limit), nil
}

// Snapshot reads all counters for the identity's current period in one query.
func (s *usageService) Snapshot(ctx context.Context, identity *domain.Identity) (*domain.UsageSnapshot, error) {
	const op = "usage.snapshot"

	if identity == nil {
		return nil, domain.Invalid(op, "identity is required")
	}

	period := domain.CurrentPeriodStart(s.now())
	counters, err := resilience.Do(ctx, s.retrier, op, func(ctx context.Context) ([]repository.UsageCounter, error) {
		return s.queries.ListUsageCounts(ctx, repository.ListUsageCountsParams{
			IdentityID:  identity.ID,
			PeriodStart: period,
		})
	})
	if err != nil {
		return nil, translateStoreError(err, op, "failed to read usage counters")
	}

	counts := make(map[domain.AnalysisType]int, len(counters))
	for _, c := range counters {
		counts[domain.AnalysisType(c.AnalysisType)] = int(c.Count)
	}

	byType := make(map[domain.AnalysisType]domain.UsageCheck, len(domain.AnalysisTypes))
	for _, t := range domain.AnalysisTypes {
		limit := domain.LimitFor(identity.Tier, t)
		if limit == domain.LimitDisabled {
			byType[t] = *disabledCheck(identity.Tier, t)
			continue
		}
		byType[t] = *buildCheck(identity, t, counts[t], limit)
	}

	return &domain.UsageSnapshot{
		IdentityID:  identity.ID,
		Tier:        identity.Tier,
		PeriodStart: period,
		ByType:      byType,
	}, nil
}

// =============================================================================
// Pure decision helpers
// =============================================================================

func buildCheck(identity *domain.Identity, analysisType domain.AnalysisType, current, limit int) *domain.UsageCheck {
	if limit == domain.LimitUnlimited {
		return &domain.UsageCheck{
			HasAccess:    true,
			CurrentUsage: current,
			Limit:        domain.LimitUnlimited,
			Remaining:    domain.LimitUnlimited,
		}
	}
	if current >= limit {
		return limitReachedCheck(identity, analysisType, current, limit)
	}
	return &domain.UsageCheck{
		HasAccess:    true,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    limit - current,
		IsAtLimit:    false,
	}
}

func disabledCheck(tier domain.Tier, analysisType domain.AnalysisType) *domain.UsageCheck {
	return &domain.UsageCheck{
		HasAccess:    false,
		CurrentUsage: 0,
		Limit:        domain.LimitDisabled,
		Remaining:    0,
		IsAtLimit:    true,
		ErrorMessage: fmt.Sprintf("%s analysis is not available in the %s plan", analysisType, tier),
	}
}

func limitReachedCheck(identity *domain.Identity, analysisType domain.AnalysisType, current, limit int) *domain.UsageCheck {
	msg := fmt.Sprintf("You have used all %d %s analyses for this month", limit, analysisType)
	return &domain.UsageCheck{
		HasAccess:    false,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    0,
		IsAtLimit:    true,
		ErrorMessage: msg,
	}
}

// translateStoreError maps resilience outcomes to domain errors. A tripped
// circuit or exhausted retries surfaces as a generic unavailability, never
// as internal detail.
func translateStoreError(err error, op, message string) error {
	if resilience.IsCircuitOpen(err) || resilience.Classify(err) == resilience.KindRetryable {
		return domain.Unavailable(err, op)
	}
	return domain.Internal(err, op, message)
}

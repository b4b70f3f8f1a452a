package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type GetUsageCountParams struct {
	IdentityID   string
	AnalysisType string
	PeriodStart  time.Time
}

func (q *Queries) GetUsageCount(ctx context.Context, arg GetUsageCountParams) (int32, error) {
	var count int32
	err := q.db.QueryRowContext(ctx, `
		SELECT count FROM usage_counters
		WHERE identity_id = $1 AND analysis_type = $2 AND period_start = $3`,
		arg.IdentityID, arg.AnalysisType, arg.PeriodStart,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

type ReserveUsageParams struct {
	IdentityID   string
	AnalysisType string
	PeriodStart  time.Time
	Limit        int32
}

// ReserveUsage increments the counter for the period if and only if the
// current count is still below the limit. It returns the new count and
// whether the increment was applied, in a single atomic statement so
// concurrent requests cannot push the counter past the limit.
func (q *Queries) ReserveUsage(ctx context.Context, arg ReserveUsageParams) (int32, bool, error) {
	var count int32
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (identity_id, analysis_type, period_start, count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (identity_id, analysis_type, period_start)
		DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
		WHERE usage_counters.count < $4
		RETURNING count`,
		arg.IdentityID, arg.AnalysisType, arg.PeriodStart, arg.Limit,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict hit with the guard false: already at the limit.
		current, gerr := q.GetUsageCount(ctx, GetUsageCountParams{
			IdentityID:   arg.IdentityID,
			AnalysisType: arg.AnalysisType,
			PeriodStart:  arg.PeriodStart,
		})
		if gerr != nil {
			return 0, false, gerr
		}
		return current, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

type IncrementUsageParams struct {
	IdentityID   string
	AnalysisType string
	PeriodStart  time.Time
}

// IncrementUsage bumps the counter unconditionally. Used for unlimited
// tiers where the count is tracked but never enforced.
func (q *Queries) IncrementUsage(ctx context.Context, arg IncrementUsageParams) (int32, error) {
	var count int32
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (identity_id, analysis_type, period_start, count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (identity_id, analysis_type, period_start)
		DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
		RETURNING count`,
		arg.IdentityID, arg.AnalysisType, arg.PeriodStart,
	).Scan(&count)
	return count, err
}

type ListUsageCountsParams struct {
	IdentityID  string
	PeriodStart time.Time
}

func (q *Queries) ListUsageCounts(ctx context.Context, arg ListUsageCountsParams) ([]UsageCounter, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT identity_id, analysis_type, period_start, count, updated_at
		FROM usage_counters
		WHERE identity_id = $1 AND period_start = $2
		ORDER BY analysis_type`,
		arg.IdentityID, arg.PeriodStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []UsageCounter
	for rows.Next() {
		var c UsageCounter
		if err := rows.Scan(&c.IdentityID, &c.AnalysisType, &c.PeriodStart, &c.Count, &c.UpdatedAt); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

type TransferUsageParams struct {
	FromIdentityID string
	ToIdentityID   string
}

// TransferUsage folds the anonymous identity's counters, across every
// period, into the user's counters so signup neither resets current
// consumption nor strands the visitor's history on the retired ID.
func (q *Queries) TransferUsage(ctx context.Context, arg TransferUsageParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO usage_counters (identity_id, analysis_type, period_start, count, updated_at)
		SELECT $2, analysis_type, period_start, count, now()
		FROM usage_counters
		WHERE identity_id = $1
		ON CONFLICT (identity_id, analysis_type, period_start)
		DO UPDATE SET count = usage_counters.count + EXCLUDED.count, updated_at = now()`,
		arg.FromIdentityID, arg.ToIdentityID)
	return err
}

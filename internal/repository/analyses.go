package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const analysisColumns = `id, identity_id, user_id, analysis_type, status, artifact_id,
	result, model, input_tokens, output_tokens, cost_cents, created_at`

type CreateAnalysisParams struct {
	IdentityID   string
	UserID       uuid.NullUUID
	AnalysisType string
	Status       string
	ArtifactID   uuid.NullUUID
	Result       pqtype.NullRawMessage
	Model        string
	InputTokens  int32
	OutputTokens int32
	CostCents    int32
}

func (q *Queries) CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) (Analysis, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO analyses (identity_id, user_id, analysis_type, status, artifact_id,
			result, model, input_tokens, output_tokens, cost_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+analysisColumns,
		arg.IdentityID, arg.UserID, arg.AnalysisType, arg.Status, arg.ArtifactID,
		arg.Result, arg.Model, arg.InputTokens, arg.OutputTokens, arg.CostCents,
	)
	return scanAnalysis(row)
}

type GetAnalysisByIDAndIdentityParams struct {
	ID         uuid.UUID
	IdentityID string
}

func (q *Queries) GetAnalysisByIDAndIdentity(ctx context.Context, arg GetAnalysisByIDAndIdentityParams) (Analysis, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE id = $1 AND identity_id = $2`,
		arg.ID, arg.IdentityID)
	return scanAnalysis(row)
}

type ListAnalysesByIdentityParams struct {
	IdentityID string
	Limit      int32
	Offset     int32
}

func (q *Queries) ListAnalysesByIdentity(ctx context.Context, arg ListAnalysesByIdentityParams) ([]Analysis, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+analysisColumns+` FROM analyses
		WHERE identity_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		arg.IdentityID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(
			&a.ID,
			&a.IdentityID,
			&a.UserID,
			&a.AnalysisType,
			&a.Status,
			&a.ArtifactID,
			&a.Result,
			&a.Model,
			&a.InputTokens,
			&a.OutputTokens,
			&a.CostCents,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

type ReassignAnalysesParams struct {
	FromIdentityID string
	ToIdentityID   string
	UserID         uuid.UUID
}

// ReassignAnalyses moves anonymous analysis history to the registered
// account during a merge.
func (q *Queries) ReassignAnalyses(ctx context.Context, arg ReassignAnalysesParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE analyses
		SET identity_id = $2, user_id = $3
		WHERE identity_id = $1`,
		arg.FromIdentityID, arg.ToIdentityID, arg.UserID)
	return err
}

func scanAnalysis(row interface{ Scan(dest ...interface{}) error }) (Analysis, error) {
	var a Analysis
	err := row.Scan(
		&a.ID,
		&a.IdentityID,
		&a.UserID,
		&a.AnalysisType,
		&a.Status,
		&a.ArtifactID,
		&a.Result,
		&a.Model,
		&a.InputTokens,
		&a.OutputTokens,
		&a.CostCents,
		&a.CreatedAt,
	)
	return a, err
}

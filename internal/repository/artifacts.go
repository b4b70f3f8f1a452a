package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const artifactColumns = `id, identity_id, kind, storage_key, thumbnail_key,
	file_name, content_type, size_bytes, created_at`

type CreateArtifactParams struct {
	IdentityID   string
	Kind         string
	StorageKey   string
	ThumbnailKey sql.NullString
	FileName     string
	ContentType  string
	SizeBytes    int64
}

func (q *Queries) CreateArtifact(ctx context.Context, arg CreateArtifactParams) (Artifact, error) {
	var a Artifact
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO artifacts (identity_id, kind, storage_key, thumbnail_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+artifactColumns,
		arg.IdentityID, arg.Kind, arg.StorageKey, arg.ThumbnailKey,
		arg.FileName, arg.ContentType, arg.SizeBytes,
	).Scan(&a.ID, &a.IdentityID, &a.Kind, &a.StorageKey, &a.ThumbnailKey,
		&a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	return a, err
}

type GetArtifactByIDAndIdentityParams struct {
	ID         uuid.UUID
	IdentityID string
}

func (q *Queries) GetArtifactByIDAndIdentity(ctx context.Context, arg GetArtifactByIDAndIdentityParams) (Artifact, error) {
	var a Artifact
	err := q.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE id = $1 AND identity_id = $2`,
		arg.ID, arg.IdentityID,
	).Scan(&a.ID, &a.IdentityID, &a.Kind, &a.StorageKey, &a.ThumbnailKey,
		&a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	return a, err
}

type ReassignArtifactsParams struct {
	FromIdentityID string
	ToIdentityID   string
}

func (q *Queries) ReassignArtifacts(ctx context.Context, arg ReassignArtifactsParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE artifacts SET identity_id = $2 WHERE identity_id = $1`,
		arg.FromIdentityID, arg.ToIdentityID)
	return err
}

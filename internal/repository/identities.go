package repository

import (
	"context"

	"github.com/google/uuid"
)

const anonymousColumns = `key, merged_user_id, created_at, last_seen_at, retired_at`

// TouchAnonymousIdentity creates the identity row on first sight and
// refreshes last_seen_at on every subsequent request.
func (q *Queries) TouchAnonymousIdentity(ctx context.Context, key string) (AnonymousIdentity, error) {
	var a AnonymousIdentity
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO anonymous_identities (key)
		VALUES ($1)
		ON CONFLICT (key)
		DO UPDATE SET last_seen_at = now()
		RETURNING `+anonymousColumns,
		key,
	).Scan(&a.Key, &a.MergedUserID, &a.CreatedAt, &a.LastSeenAt, &a.RetiredAt)
	return a, err
}

func (q *Queries) GetAnonymousIdentity(ctx context.Context, key string) (AnonymousIdentity, error) {
	var a AnonymousIdentity
	err := q.db.QueryRowContext(ctx, `
		SELECT `+anonymousColumns+` FROM anonymous_identities WHERE key = $1`,
		key,
	).Scan(&a.Key, &a.MergedUserID, &a.CreatedAt, &a.LastSeenAt, &a.RetiredAt)
	return a, err
}

type RetireAnonymousIdentityParams struct {
	Key          string
	MergedUserID uuid.UUID
}

// RetireAnonymousIdentity marks the key as merged into a registered
// account. A retired key is never reused for metering.
func (q *Queries) RetireAnonymousIdentity(ctx context.Context, arg RetireAnonymousIdentityParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE anonymous_identities
		SET merged_user_id = $2, retired_at = now()
		WHERE key = $1 AND retired_at IS NULL`,
		arg.Key, arg.MergedUserID)
	return err
}

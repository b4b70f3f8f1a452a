package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, stripe_customer_id, subscription_id,
	subscription_status, subscription_tier, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.StripeCustomerID,
		&u.SubscriptionID,
		&u.SubscriptionStatus,
		&u.SubscriptionTier,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		arg.Email, arg.PasswordHash, arg.Name,
	)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID)
	return scanUser(row)
}

func (q *Queries) UpdateUserStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, customerID)
	return err
}

type UpdateUserSubscriptionParams struct {
	StripeCustomerID   string
	SubscriptionID     sql.NullString
	SubscriptionStatus string
	SubscriptionTier   string
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_id = $2,
		    subscription_status = $3,
		    subscription_tier = $4,
		    updated_at = now()
		WHERE stripe_customer_id = $1`,
		arg.StripeCustomerID, arg.SubscriptionID, arg.SubscriptionStatus, arg.SubscriptionTier)
	return err
}

// =============================================================================
// Sessions
// =============================================================================

type CreateSessionParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token_hash, expires_at, created_at`,
		arg.UserID, arg.TokenHash, arg.ExpiresAt,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

type GetUserBySessionTokenHashRow struct {
	User      User
	ExpiresAt time.Time
}

func (q *Queries) GetUserBySessionTokenHash(ctx context.Context, tokenHash string) (GetUserBySessionTokenHashRow, error) {
	var r GetUserBySessionTokenHashRow
	err := q.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.name, u.stripe_customer_id, u.subscription_id,
		       u.subscription_status, u.subscription_tier, u.created_at, u.updated_at,
		       s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > now()`,
		tokenHash,
	).Scan(
		&r.User.ID,
		&r.User.Email,
		&r.User.PasswordHash,
		&r.User.Name,
		&r.User.StripeCustomerID,
		&r.User.SubscriptionID,
		&r.User.SubscriptionStatus,
		&r.User.SubscriptionTier,
		&r.User.CreatedAt,
		&r.User.UpdatedAt,
		&r.ExpiresAt,
	)
	return r, err
}

func (q *Queries) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (q *Queries) DeleteSessionsByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (q *Queries) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so queries can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// =============================================================================
// Row Models
// =============================================================================

type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	Name               string
	StripeCustomerID   sql.NullString
	SubscriptionID     sql.NullString
	SubscriptionStatus string
	SubscriptionTier   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type AnonymousIdentity struct {
	Key          string
	MergedUserID uuid.NullUUID
	CreatedAt    time.Time
	LastSeenAt   time.Time
	RetiredAt    sql.NullTime
}

type UsageCounter struct {
	IdentityID   string
	AnalysisType string
	PeriodStart  time.Time
	Count        int32
	UpdatedAt    time.Time
}

type Artifact struct {
	ID           uuid.UUID
	IdentityID   string
	Kind         string
	StorageKey   string
	ThumbnailKey sql.NullString
	FileName     string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

type Analysis struct {
	ID           uuid.UUID
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
	CreatedAt    time.Time
}

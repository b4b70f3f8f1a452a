// Package service contains the business logic layer.
//
// This file implements identity resolution: mapping a request to the single
// identity its usage is attributed to, either an authenticated account or an
// anonymous cookie-backed visitor.
package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"log/slog"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/repository"
	"github.com/google/uuid"
)

// TxStarter is the subset of *sql.DB the services need to open transactions.
type TxStarter interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// IdentityService resolves requests to identities and merges anonymous
// history into accounts at signup.
type IdentityService interface {
	// Resolve returns the identity for a request. When user is non-nil the
	// identity is the account; otherwise anonKey (the cookie value, possibly
	// empty) determines the anonymous identity. A freshly minted key is
	// returned in Identity.FreshKey so the HTTP layer can set the cookie.
	//
	// Resolution never fails outright: if the persistence layer is down the
	// visitor still gets a working anonymous identity for this request.
	Resolve(ctx context.Context, user *domain.User, anonKey string) *domain.Identity

	// Merge folds an anonymous identity's usage history and records into a
	// user account and retires the anonymous record. Safe to call with an
	// unknown or already-retired key.
	Merge(ctx context.Context, anonKey string, userID uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

type identityService struct {
	queries *repository.Queries
	db      TxStarter
	logger  *slog.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(queries *repository.Queries, db TxStarter, logger *slog.Logger) IdentityService {
	return &identityService{
		queries: queries,
		db:      db,
		logger:  logger,
	}
}

// Resolve maps a request to its quota identity.
func (s *identityService) Resolve(ctx context.Context, user *domain.User, anonKey string) *domain.Identity {
	if user != nil {
		userID := user.ID
		return &domain.Identity{
			ID:     domain.UserIdentityID(userID),
			Kind:   domain.IdentityKindUser,
			UserID: &userID,
			Tier:   user.EffectiveTier(),
		}
	}

	if anonKey != "" && validAnonymousKey(anonKey) {
		// Touch the persisted record so last_seen_at stays current. A
		// retired key (merged at signup) gets a fresh identity instead.
		rec, err := s.queries.TouchAnonymousIdentity(ctx, anonKey)
		if err != nil {
			// Persistence being down never blocks resolution.
			s.logger.Warn("Anonymous identity touch failed, continuing without persistence",
				"error", err)
			return anonymousIdentity(anonKey, "")
		}
		if !rec.RetiredAt.Valid {
			return anonymousIdentity(anonKey, "")
		}
		s.logger.Info("Retired anonymous key presented, minting replacement")
	}

	// Absent, malformed, or retired key: mint a new one.
	fresh := MintAnonymousKey()
	if _, err := s.queries.TouchAnonymousIdentity(ctx, fresh); err != nil {
		s.logger.Warn("Anonymous identity create failed, continuing without persistence",
			"error", err)
	}
	return anonymousIdentity(fresh, fresh)
}

// Merge folds anonymous usage into the account, all within one transaction
// so a crash cannot leave half-merged counters.
func (s *identityService) Merge(ctx context.Context, anonKey string, userID uuid.UUID) error {
	const op = "identity.merge"

	if anonKey == "" || !validAnonymousKey(anonKey) {
		return nil
	}

	rec, err := s.queries.GetAnonymousIdentity(ctx, anonKey)
	if err != nil {
		// Unknown key: nothing to merge.
		return nil
	}
	if rec.RetiredAt.Valid {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Internal(err, op, "failed to begin merge transaction")
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	fromID := domain.AnonymousIdentityID(anonKey)
	toID := domain.UserIdentityID(userID)

	if err := qtx.TransferUsage(ctx, repository.TransferUsageParams{
		FromIdentityID: fromID,
		ToIdentityID:   toID,
	}); err != nil {
		return domain.Internal(err, op, "failed to transfer usage counters")
	}

	if err := qtx.ReassignAnalyses(ctx, repository.ReassignAnalysesParams{
		FromIdentityID: fromID,
		ToIdentityID:   toID,
		UserID:         userID,
	}); err != nil {
		return domain.Internal(err, op, "failed to reassign analyses")
	}

	if err := qtx.ReassignArtifacts(ctx, repository.ReassignArtifactsParams{
		FromIdentityID: fromID,
		ToIdentityID:   toID,
	}); err != nil {
		return domain.Internal(err, op, "failed to reassign artifacts")
	}

	if err := qtx.RetireAnonymousIdentity(ctx, repository.RetireAnonymousIdentityParams{
		Key:          anonKey,
		MergedUserID: userID,
	}); err != nil {
		return domain.Internal(err, op, "failed to retire anonymous identity")
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal(err, op, "failed to commit merge")
	}

	s.logger.Info("Merged anonymous identity into account", "user_id", userID)
	return nil
}

// MintAnonymousKey generates a new URL-safe anonymous identity key.
func MintAnonymousKey() string {
	buf := make([]byte, domain.AnonymousKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is unrecoverable.
		panic("identity: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// validAnonymousKey rejects cookie values that cannot be a minted key.
func validAnonymousKey(key string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return false
	}
	return len(raw) >= 16
}

func anonymousIdentity(key, freshKey string) *domain.Identity {
	return &domain.Identity{
		ID:       domain.AnonymousIdentityID(key),
		Kind:     domain.IdentityKindAnonymous,
		Tier:     domain.TierFree,
		FreshKey: freshKey,
	}
}

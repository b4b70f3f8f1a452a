// Package domain contains core business types and interfaces.
//
// This file defines the Identity type: the unit of quota attribution. Every
// request resolves to exactly one identity, either an authenticated account or
// an anonymous cookie-backed visitor.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdentityKind distinguishes authenticated accounts from anonymous visitors.
type IdentityKind string

const (
	IdentityKindUser      IdentityKind = "user"
	IdentityKindAnonymous IdentityKind = "anonymous"
)

const (
	// AnonymousCookieName is the cookie that carries the anonymous identity key.
	AnonymousCookieName = "gb_anon_id"

	// AnonymousCookieMaxAge is the anonymous cookie lifetime.
	// 30 days = 2592000 seconds.
	AnonymousCookieMaxAge = 30 * 24 * 60 * 60

	// AnonymousKeyBytes is the number of random bytes in an anonymous key.
	// 24 bytes = 192 bits of entropy, URL-safe base64 encoded to 32 characters.
	AnonymousKeyBytes = 24
)

// Identity is the resolved quota subject for a request.
//
// USER identities are permanent and 1:1 with an account. ANONYMOUS identities
// are minted on first unauthenticated request and may later be merged into a
// USER identity at signup or login.
type Identity struct {
	ID     string       // "user-<uuid>" or "anon-<key>"
	Kind   IdentityKind // user or anonymous
	UserID *uuid.UUID   // set only for user identities
	Tier   Tier         // tier in effect at resolution time

	// FreshKey is set when a new anonymous key was minted during resolution.
	// The HTTP layer must issue it as a cookie; the gate itself never touches
	// the response.
	FreshKey string
}

// IsAnonymous returns true for cookie-backed visitor identities.
func (i *Identity) IsAnonymous() bool {
	return i.Kind == IdentityKindAnonymous
}

// UserIdentityID builds the canonical identity ID for an account.
func UserIdentityID(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// AnonymousIdentityID builds the canonical identity ID for an anonymous key.
func AnonymousIdentityID(key string) string {
	return "anon-" + key
}

// AnonymousIdentity represents the persisted record of an anonymous visitor.
//
// The record exists so usage history survives across requests and can be
// merged into an account later. RetiredAt is set when the merge happens; a
// retired identity is never resolved again.
type AnonymousIdentity struct {
	Key          string // the opaque cookie value
	MergedUserID *uuid.UUID
	CreatedAt    time.Time
	LastSeenAt   time.Time
	RetiredAt    *time.Time
}

// IsRetired returns true once the identity has been merged into an account.
func (a *AnonymousIdentity) IsRetired() bool {
	return a.RetiredAt != nil
}

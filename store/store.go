package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the token.
var ErrNotFound = errors.New("refresh token record not found")

// ErrUnavailable marks a transient backend failure. It means "unknown", not
// "invalid": callers must never treat a store outage as proof of revocation.
var ErrUnavailable = errors.New("refresh token store unavailable")

// Record is a persisted refresh-token entry. The token string is the
// primary key and must come from a CSPRNG. A record is valid iff it is not
// revoked and now is before ExpiresAt; once revoked it is never un-revoked.
//
// ClientID, IP, and UserAgent are audit metadata only and play no part in
// validity checks.
type Record struct {
	Token     string
	SubjectID string
	TokenID   string
	ClientID  string
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt time.Time
}

// IsValid reports whether the record may still be exchanged at the given
// instant. Expired-but-unswept records are invalid here regardless of
// whether housekeeping has run.
func (r Record) IsValid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store is the refresh-token persistence contract. The in-memory
// implementation completes synchronously; durable backends may block, so
// every operation takes a context and propagates cancellation.
//
// Records returned by Get are snapshots: mutating them does not affect the
// stored state. Concurrent operations on the same key are linearizable.
type Store interface {
	// Save persists a record, overwriting any existing entry for the exact
	// same token string.
	Save(ctx context.Context, rec Record) error

	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, token string) (*Record, error)

	// Revoke marks the record revoked at now. It reports whether this call
	// performed the Active-to-Revoked transition: false when the record is
	// missing, already revoked, or already expired. Missing records are not
	// an error.
	Revoke(ctx context.Context, token string, now time.Time) (bool, error)

	// RevokeAllForSubject revokes every non-revoked record owned by the
	// subject with the same timestamp and returns how many it transitioned.
	RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error)

	// CountActiveForSubject returns the number of currently valid records
	// owned by the subject.
	CountActiveForSubject(ctx context.Context, subjectID string, now time.Time) (int, error)

	// SweepExpired removes records whose expiry has passed and returns the
	// removed count. Sweeping is advisory housekeeping: validity checks
	// never depend on it having run.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

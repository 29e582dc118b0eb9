package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned when no record matches the lookup key.
	ErrRecordNotFound = errors.New("refresh record not found")
	// ErrDuplicateJTI is returned by Create when the jti already exists.
	ErrDuplicateJTI = errors.New("duplicate refresh record jti")
	// ErrConcurrentModification is returned by Save when the stored status
	// no longer matches the status the caller last read. The caller must
	// treat this as a possible replay race, never retry blindly.
	ErrConcurrentModification = errors.New("concurrent refresh record modification")
	// ErrStoreUnavailable wraps infrastructure failures (Redis/SQL down).
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Store is the core transactional contract for refresh token records. It is
// deliberately small; analytical queries live on [Reporter] so one interface
// never mixes transactional and reporting concerns.
type Store interface {
	// Create persists a new record and returns it with the store key assigned.
	Create(ctx context.Context, rec Record) (Record, error)

	FindByJTI(ctx context.Context, jti string) (Record, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// Save persists a transition produced by MarkUsed/MarkRevoked/
	// WithLastUsed. It is an atomic conditional update: it succeeds only if
	// the stored status still equals expectedStatus, and fails with
	// [ErrConcurrentModification] otherwise. This is the single
	// synchronization point of the rotation protocol and must hold across
	// service instances without advisory locking.
	Save(ctx context.Context, updated Record, expectedStatus Status) error

	// RevokeAllForUser transitions every non-terminal record of the user to
	// REVOKED, skipping excludeJTI when non-empty. Returns the count revoked.
	RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error)
	// RevokeAllForDevice is RevokeAllForUser scoped to one device.
	RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error)

	// CleanupExpired removes records whose expiry passed before the given
	// time. Run out-of-band, never on the request path.
	CleanupExpired(ctx context.Context, before time.Time) (int, error)
}

// Reporter is the read-model surface over refresh records, used by
// revocation flows (chain analysis) and operational tooling.
type Reporter interface {
	// ListByUser returns the user's records, newest first. limit <= 0 means
	// no limit.
	ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error)
	// ListByDevice returns the device's records, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Record, error)
}

// FullStore combines the transactional and reporting contracts; every
// implementation in this package satisfies it.
type FullStore interface {
	Store
	Reporter
}

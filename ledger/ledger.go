package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrLedgerUnavailable wraps infrastructure failures (Redis down).
var ErrLedgerUnavailable = errors.New("revocation ledger unavailable")

// Checker is the request-path surface of the ledger: membership lookups
// only. Middleware and the validate flow depend on this, never on the full
// [Ledger], so hot paths cannot accidentally reach the scan operations.
type Checker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	IsTokenHashRevoked(ctx context.Context, tokenHash string) (bool, error)
	IsRevokedBatch(ctx context.Context, jtis []string) (map[string]bool, error)
}

// Ledger is the full denylist contract: membership plus mutation, capacity
// discipline, and the operational surface.
type Ledger interface {
	Checker

	// Add records an entry. Returns false when the jti was already denied.
	Add(ctx context.Context, entry Entry) (bool, error)
	// AddBatch records entries, skipping those already present. Returns the
	// number newly added.
	AddBatch(ctx context.Context, entries []Entry) (int, error)

	// Remove deletes an entry. Returns false when the jti was not present.
	Remove(ctx context.Context, jti string) (bool, error)
	RemoveBatch(ctx context.Context, jtis []string) (int, error)

	// RevokeAllForUser re-stamps the reason on every entry currently held
	// for the user, skipping excludeJTI when non-empty. The ledger only
	// knows identifiers it was handed; denying a user's live tokens is the
	// orchestrator's job (store listing plus AddBatch).
	RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error)
	// RevokeAllForDevice is RevokeAllForUser scoped to one device.
	RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error)

	// CleanupExpiredEntries removes entries whose denied token expired
	// before the given time. Run out-of-band.
	CleanupExpiredEntries(ctx context.Context, before time.Time) (int, error)
	// CleanupOldEntries removes entries blacklisted more than the retention
	// window ago, regardless of token expiry.
	CleanupOldEntries(ctx context.Context, olderThanDays int) (int, error)

	// IsSizeExceeded reports whether the entry count passed maxSize.
	IsSizeExceeded(ctx context.Context, maxSize int64) (bool, error)
	// EvictOldest removes up to count entries, oldest first, and returns
	// the number evicted.
	EvictOldest(ctx context.Context, count int) (int, error)

	SizeInfo(ctx context.Context, maxSize int64) (SizeInfo, error)
	Stats(ctx context.Context) (Stats, error)
	// Search filters entries for incident response, newest first.
	Search(ctx context.Context, criteria SearchCriteria, limit, offset int) ([]Entry, error)
}

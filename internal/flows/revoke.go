package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
)

// RevokeFailureKind classifies revocation failures for root-level mapping.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureUnknownRecord
	RevokeFailureStore
	RevokeFailureLedger
)

// RevokeResult reports the outcome of a revocation.
type RevokeResult struct {
	Failure RevokeFailureKind
	Err     error
	UserID  int64
	// Count is the number of records transitioned to REVOKED.
	Count int
	// Denied is the number of jtis newly mirrored into the ledger.
	Denied int
}

// RevokeDeps captures revocation flow dependencies.
type RevokeDeps struct {
	Store    RecordStore
	Denylist Denylist
	Now      func() time.Time
}

// RunRevoke revokes one refresh record and mirrors its jti into the ledger.
// Revoking an already-terminal record is idempotent on the store side; the
// ledger entry is still ensured so the paired access token dies with it.
func RunRevoke(ctx context.Context, jti, reason string, deps RevokeDeps) RevokeResult {
	rec, err := deps.Store.FindByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, refresh.ErrRecordNotFound) {
			return RevokeResult{Failure: RevokeFailureUnknownRecord, Err: err}
		}
		return RevokeResult{Failure: RevokeFailureStore, Err: err}
	}

	count := 0
	if !rec.Terminal() {
		revoked, markErr := rec.MarkRevoked(reason, deps.Now())
		if markErr != nil {
			return RevokeResult{Failure: RevokeFailureStore, Err: markErr, UserID: rec.UserID}
		}
		if saveErr := deps.Store.Save(ctx, revoked, rec.Status); saveErr != nil {
			if !errors.Is(saveErr, refresh.ErrConcurrentModification) {
				return RevokeResult{Failure: RevokeFailureStore, Err: saveErr, UserID: rec.UserID}
			}
			// Lost the race to a rotation or another revoker; the ledger
			// entry below still denies the token.
		} else {
			count = 1
		}
	}

	denied := 0
	entry, entryErr := ledger.NewEntry(rec.JTI, rec.TokenHash, rec.UserID, rec.Device.DeviceID, reason, rec.ExpiresAt)
	if entryErr == nil {
		added, addErr := deps.Denylist.Add(ctx, entry)
		if addErr != nil {
			return RevokeResult{Failure: RevokeFailureLedger, Err: addErr, UserID: rec.UserID, Count: count}
		}
		if added {
			denied = 1
		}
	}

	return RevokeResult{UserID: rec.UserID, Count: count, Denied: denied}
}

// RunRevokeAllForUser revokes every non-terminal record of the user and
// mirrors all their jtis into the ledger. excludeJTI spares one token, for
// "logout everywhere else".
func RunRevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string, deps RevokeDeps) RevokeResult {
	records, err := deps.Store.ListByUser(ctx, userID, 0)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err, UserID: userID}
	}

	count, err := deps.Store.RevokeAllForUser(ctx, userID, reason, excludeJTI)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err, UserID: userID}
	}

	denied, err := denyRecords(ctx, deps, records, reason, excludeJTI)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureLedger, Err: err, UserID: userID, Count: count}
	}

	return RevokeResult{UserID: userID, Count: count, Denied: denied}
}

// RunRevokeAllForDevice is RunRevokeAllForUser scoped to one device.
func RunRevokeAllForDevice(ctx context.Context, deviceID, reason string, deps RevokeDeps) RevokeResult {
	records, err := deps.Store.ListByDevice(ctx, deviceID, 0)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err}
	}

	count, err := deps.Store.RevokeAllForDevice(ctx, deviceID, reason)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err}
	}

	denied, err := denyRecords(ctx, deps, records, reason, "")
	if err != nil {
		return RevokeResult{Failure: RevokeFailureLedger, Err: err, Count: count}
	}

	return RevokeResult{Count: count, Denied: denied}
}

func denyRecords(ctx context.Context, deps RevokeDeps, records []refresh.Record, reason, excludeJTI string) (int, error) {
	entries := make([]ledger.Entry, 0, len(records))
	for _, rec := range records {
		if rec.JTI == excludeJTI {
			continue
		}
		entry, err := ledger.NewEntry(rec.JTI, rec.TokenHash, rec.UserID, rec.Device.DeviceID, reason, rec.ExpiresAt)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return deps.Denylist.AddBatch(ctx, entries)
}

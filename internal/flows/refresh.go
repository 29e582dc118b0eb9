package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
)

// ChainReuseReason is stamped on every record and ledger entry revoked by
// replay detection.
const ChainReuseReason = "token_rotation_reuse"

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureExpired
	RefreshFailureInvalid
	RefreshFailureRateLimited
	RefreshFailureRevoked
	RefreshFailureUnknownRecord
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureLedger
	RefreshFailureIssue
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       int64
	UsedJTI      string
	NewJTI       string
	AccessToken  string
	RefreshToken string
	ChainRevoked int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Codec       Codec
	Store       RecordStore
	Denylist    Denylist
	RateLimiter RefreshRateLimiter
	Issue       IssueDeps
}

// RunRefresh executes one rotation: verify the presented refresh token,
// consume its record through the conditional save, and issue the successor
// pair linked by parent jti. A presented token whose record is already
// terminal, or whose conditional save loses the race, is a replay signal and
// takes the whole rotation chain down with it.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Codec.Validate(refreshToken, jwt.TypeRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.JTI); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UsedJTI: claims.JTI}
		}
	}

	revoked, err := deps.Denylist.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureLedger, Err: err, UsedJTI: claims.JTI}
	}
	if revoked {
		return RefreshResult{Failure: RefreshFailureRevoked, UsedJTI: claims.JTI}
	}

	rec, err := deps.Store.FindByJTI(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, refresh.ErrRecordNotFound) {
			return RefreshResult{Failure: RefreshFailureUnknownRecord, Err: err, UsedJTI: claims.JTI}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UsedJTI: claims.JTI}
	}

	// A token presented with a subject that does not own the record is as
	// suspicious as a replay.
	if ownerID, ok := userIDFromSubject(claims.Subject); !ok || ownerID != rec.UserID {
		count, _ := revokeChain(ctx, deps, rec)
		return RefreshResult{
			Failure:      RefreshFailureReuse,
			UserID:       rec.UserID,
			UsedJTI:      rec.JTI,
			ChainRevoked: count,
		}
	}

	now := deps.Issue.Now()
	if rec.Expired(now) {
		return RefreshResult{Failure: RefreshFailureExpired, UserID: rec.UserID, UsedJTI: rec.JTI}
	}

	if rec.Terminal() {
		count, chainErr := revokeChain(ctx, deps, rec)
		return RefreshResult{
			Failure:      RefreshFailureReuse,
			Err:          chainErr,
			UserID:       rec.UserID,
			UsedJTI:      rec.JTI,
			ChainRevoked: count,
		}
	}

	used, err := rec.MarkUsed(now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: rec.UserID, UsedJTI: rec.JTI}
	}
	if err := deps.Store.Save(ctx, used, refresh.StatusActive); err != nil {
		// Losing the conditional save means another rotation of the same
		// token already won: identical replay handling.
		if errors.Is(err, refresh.ErrConcurrentModification) {
			count, chainErr := revokeChain(ctx, deps, rec)
			return RefreshResult{
				Failure:      RefreshFailureReuse,
				Err:          chainErr,
				UserID:       rec.UserID,
				UsedJTI:      rec.JTI,
				ChainRevoked: count,
			}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: rec.UserID, UsedJTI: rec.JTI}
	}

	issued := RunIssue(ctx, rec.UserID, rec.Device, claims.Extra, rec.JTI, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return RefreshResult{
			Failure: RefreshFailureIssue,
			Err:     issued.Err,
			UserID:  rec.UserID,
			UsedJTI: rec.JTI,
		}
	}

	return RefreshResult{
		UserID:       rec.UserID,
		UsedJTI:      rec.JTI,
		NewJTI:       issued.JTI,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ChainRevoked: 0,
	}
}

// revokeChain treats the rotation chain containing pivot as compromised:
// every record sharing pivot's root is revoked and denied in the ledger.
// Individual conditional-save losses are skipped; a concurrent writer on
// the same chain is doing the same work.
func revokeChain(ctx context.Context, deps RefreshDeps, pivot refresh.Record) (int, error) {
	records, err := deps.Store.ListByUser(ctx, pivot.UserID, 0)
	if err != nil {
		return 0, err
	}

	byJTI := make(map[string]refresh.Record, len(records))
	for _, rec := range records {
		byJTI[rec.JTI] = rec
	}

	root := chainRoot(pivot, byJTI)
	now := deps.Issue.Now()

	count := 0
	entries := make([]ledger.Entry, 0)
	for _, rec := range records {
		if chainRoot(rec, byJTI) != root {
			continue
		}

		if !rec.Terminal() {
			revoked, markErr := rec.MarkRevoked(ChainReuseReason, now)
			if markErr == nil {
				saveErr := deps.Store.Save(ctx, revoked, rec.Status)
				if saveErr == nil {
					count++
				} else if !errors.Is(saveErr, refresh.ErrConcurrentModification) &&
					!errors.Is(saveErr, refresh.ErrRecordNotFound) {
					return count, saveErr
				}
			}
		}

		entry, entryErr := ledger.NewEntry(
			rec.JTI, rec.TokenHash, rec.UserID, rec.Device.DeviceID,
			ChainReuseReason, rec.ExpiresAt,
		)
		if entryErr == nil {
			entries = append(entries, entry)
		}
	}

	if _, err := deps.Denylist.AddBatch(ctx, entries); err != nil {
		return count, err
	}
	return count, nil
}

// chainRoot walks parent links within the fetched record set. A dangling
// parent (already swept) terminates the walk at the last known ancestor.
func chainRoot(rec refresh.Record, byJTI map[string]refresh.Record) string {
	current := rec
	for i := 0; i < len(byJTI)+1; i++ {
		if current.ParentJTI == "" {
			return current.JTI
		}
		parent, ok := byJTI[current.ParentJTI]
		if !ok {
			return current.ParentJTI
		}
		current = parent
	}
	return current.JTI
}

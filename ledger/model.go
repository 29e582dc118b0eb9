package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEntryInvalid is returned when entry construction violates an invariant.
var ErrEntryInvalid = errors.New("invalid ledger entry")

// Entry denies one token identifier. ExpiresAt is copied from the original
// token so the entry can be purged once the token would have expired anyway.
type Entry struct {
	ID            uuid.UUID
	JTI           string
	TokenHash     string
	UserID        int64
	DeviceID      string
	Reason        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

// NewEntry builds a ledger entry for a token. tokenHash and deviceID may be
// empty; jti, userID, reason, and expiresAt are required.
func NewEntry(jti, tokenHash string, userID int64, deviceID, reason string, expiresAt time.Time) (Entry, error) {
	switch {
	case jti == "":
		return Entry{}, fmt.Errorf("%w: missing jti", ErrEntryInvalid)
	case userID <= 0:
		return Entry{}, fmt.Errorf("%w: non-positive user id %d", ErrEntryInvalid, userID)
	case reason == "":
		return Entry{}, fmt.Errorf("%w: missing reason", ErrEntryInvalid)
	case expiresAt.IsZero():
		return Entry{}, fmt.Errorf("%w: missing expiry", ErrEntryInvalid)
	}

	return Entry{
		ID:            uuid.New(),
		JTI:           jti,
		TokenHash:     tokenHash,
		UserID:        userID,
		DeviceID:      deviceID,
		Reason:        reason,
		BlacklistedAt: time.Now(),
		ExpiresAt:     expiresAt,
	}, nil
}

// Moot reports whether the entry denies a token that is already expired.
func (e Entry) Moot(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// SizeInfo reports ledger occupancy against a configured cap.
type SizeInfo struct {
	Entries    int64
	MaxEntries int64
	Exceeded   bool
}

// Stats is an operational snapshot of the ledger contents.
type Stats struct {
	Total    int64
	ByReason map[string]int64
	OldestAt time.Time
	NewestAt time.Time
}

// SearchCriteria filters entries for incident response. Zero-valued fields
// are ignored.
type SearchCriteria struct {
	UserID   int64
	DeviceID string
	Reason   string
	Since    time.Time
	Until    time.Time
}

func (c SearchCriteria) matches(e Entry) bool {
	if c.UserID > 0 && e.UserID != c.UserID {
		return false
	}
	if c.DeviceID != "" && e.DeviceID != c.DeviceID {
		return false
	}
	if c.Reason != "" && e.Reason != c.Reason {
		return false
	}
	if !c.Since.IsZero() && e.BlacklistedAt.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && e.BlacklistedAt.After(c.Until) {
		return false
	}
	return true
}

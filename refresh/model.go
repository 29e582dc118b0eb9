package refresh

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Status is the stored lifecycle state of a refresh token record.
type Status string

const (
	// StatusActive marks a token that may still be rotated.
	StatusActive Status = "active"
	// StatusUsed marks a token consumed by a successful rotation. Terminal.
	StatusUsed Status = "used"
	// StatusRevoked marks a token invalidated by logout or a security
	// action. Terminal.
	StatusRevoked Status = "revoked"
	// StatusExpired is a derived state persisted only by out-of-band sweep
	// jobs for query convenience; the request path computes it from
	// ExpiresAt instead.
	StatusExpired Status = "expired"
)

const maxRecordLifetime = 10 * 365 * 24 * time.Hour

var (
	// ErrRecordInvalid is returned when record construction violates an invariant.
	ErrRecordInvalid = errors.New("invalid refresh record")
	// ErrRecordTerminal is returned by transitions on USED or REVOKED records.
	ErrRecordTerminal = errors.New("refresh record is terminal")
)

var jtiPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,255}$`)
var hexHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// DeviceInfo identifies the device a refresh token was issued to. It is an
// opaque immutable value; the store never interprets it beyond indexing
// DeviceID.
type DeviceInfo struct {
	DeviceID  string
	Name      string
	IP        string
	UserAgent string
}

// Record is one issued refresh token. Values are immutable: transitions
// return new records with the field delta applied and UpdatedAt refreshed,
// which preserves the audit trail and makes concurrent-update races
// detectable by comparing the previous status in [Store.Save].
type Record struct {
	ID        string
	JTI       string
	UserID    int64
	TokenHash string
	Status    Status
	Device    DeviceInfo

	// RevokedReason and RevokedAt are both set iff Status == StatusRevoked.
	RevokedReason string
	RevokedAt     time.Time

	LastUsedAt time.Time
	ParentJTI  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRecord builds an ACTIVE record for a freshly issued refresh token.
// parentJTI is empty for login-issued roots and carries the rotated-from jti
// otherwise.
func NewRecord(jti string, userID int64, tokenHash string, expiresAt time.Time, device DeviceInfo, parentJTI string) (Record, error) {
	now := time.Now()

	switch {
	case !jtiPattern.MatchString(jti):
		return Record{}, fmt.Errorf("%w: jti %q out of shape", ErrRecordInvalid, jti)
	case userID <= 0:
		return Record{}, fmt.Errorf("%w: non-positive user id %d", ErrRecordInvalid, userID)
	case !hexHashPattern.MatchString(tokenHash):
		return Record{}, fmt.Errorf("%w: token hash must be 64 hex chars", ErrRecordInvalid)
	case expiresAt.IsZero():
		return Record{}, fmt.Errorf("%w: missing expiry", ErrRecordInvalid)
	case expiresAt.After(now.Add(maxRecordLifetime)):
		return Record{}, fmt.Errorf("%w: expiry more than 10 years out", ErrRecordInvalid)
	case parentJTI != "" && !jtiPattern.MatchString(parentJTI):
		return Record{}, fmt.Errorf("%w: parent jti %q out of shape", ErrRecordInvalid, parentJTI)
	}

	return Record{
		JTI:       jti,
		UserID:    userID,
		TokenHash: tokenHash,
		Status:    StatusActive,
		Device:    device,
		ParentJTI: parentJTI,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkUsed returns a copy transitioned to USED. Fails on terminal records.
func (r Record) MarkUsed(at time.Time) (Record, error) {
	if r.Terminal() {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordTerminal, r.Status)
	}
	next := r
	next.Status = StatusUsed
	next.LastUsedAt = at
	next.UpdatedAt = at
	return next, nil
}

// MarkRevoked returns a copy transitioned to REVOKED with reason and
// timestamp set together, never separately.
func (r Record) MarkRevoked(reason string, at time.Time) (Record, error) {
	if r.Terminal() {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordTerminal, r.Status)
	}
	if reason == "" {
		return Record{}, fmt.Errorf("%w: revocation requires a reason", ErrRecordInvalid)
	}
	next := r
	next.Status = StatusRevoked
	next.RevokedReason = reason
	next.RevokedAt = at
	next.UpdatedAt = at
	return next, nil
}

// WithLastUsed returns a copy with the last successful validation time
// recorded. The status is unchanged.
func (r Record) WithLastUsed(at time.Time) Record {
	next := r
	next.LastUsedAt = at
	next.UpdatedAt = at
	return next
}

// Terminal reports whether the record can never transition again.
func (r Record) Terminal() bool {
	return r.Status == StatusUsed || r.Status == StatusRevoked
}

// Expired reports the time-derived EXPIRED state.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Root reports whether this record started a rotation chain (login-issued).
func (r Record) Root() bool {
	return r.ParentJTI == ""
}

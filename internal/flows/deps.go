package flows

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
)

// Codec is the cryptographic surface the flows need from the token manager.
type Codec interface {
	GenerateAccess(subject, jti string, extra map[string]any) (string, error)
	GenerateRefresh(subject, jti string, extra map[string]any) (string, error)
	Validate(tokenStr string, expected jwt.TokenType) (*jwt.Claims, error)
	RefreshTTL() time.Duration
}

// RecordStore is the refresh-record surface the flows need.
type RecordStore interface {
	Create(ctx context.Context, rec refresh.Record) (refresh.Record, error)
	FindByJTI(ctx context.Context, jti string) (refresh.Record, error)
	Save(ctx context.Context, updated refresh.Record, expectedStatus refresh.Status) error
	RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error)
	RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]refresh.Record, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]refresh.Record, error)
}

// Denylist is the revocation-ledger surface the flows need.
type Denylist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Add(ctx context.Context, entry ledger.Entry) (bool, error)
	AddBatch(ctx context.Context, entries []ledger.Entry) (int, error)
}

// RefreshRateLimiter throttles rotation attempts per token identifier.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, jti string) error
}

func subjectFor(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func userIDFromSubject(subject string) (int64, bool) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

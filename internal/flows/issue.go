package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/refresh"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureJTI
	IssueFailureGenerate
	IssueFailureRecord
	IssueFailureStore
)

// IssueResult carries either the issued token pair or failure metadata.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	UserID       int64
	JTI          string
	AccessToken  string
	RefreshToken string
	Record       refresh.Record
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Codec     Codec
	Store     RecordStore
	NewJTI    func() (string, error)
	HashToken func(string) string
	Now       func() time.Time
}

// RunIssue mints an access+refresh pair sharing one jti and persists the
// ACTIVE refresh record. parentJTI is empty for login-issued roots and
// carries the rotated-from jti when continuing a chain.
func RunIssue(ctx context.Context, userID int64, device refresh.DeviceInfo, extra map[string]any, parentJTI string, deps IssueDeps) IssueResult {
	jti, err := deps.NewJTI()
	if err != nil {
		return IssueResult{Failure: IssueFailureJTI, Err: err, UserID: userID}
	}

	subject := subjectFor(userID)
	access, err := deps.Codec.GenerateAccess(subject, jti, extra)
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerate, Err: err, UserID: userID, JTI: jti}
	}
	refreshToken, err := deps.Codec.GenerateRefresh(subject, jti, extra)
	if err != nil {
		return IssueResult{Failure: IssueFailureGenerate, Err: err, UserID: userID, JTI: jti}
	}

	rec, err := refresh.NewRecord(
		jti,
		userID,
		deps.HashToken(refreshToken),
		deps.Now().Add(deps.Codec.RefreshTTL()),
		device,
		parentJTI,
	)
	if err != nil {
		return IssueResult{Failure: IssueFailureRecord, Err: err, UserID: userID, JTI: jti}
	}

	created, err := deps.Store.Create(ctx, rec)
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, UserID: userID, JTI: jti}
	}

	return IssueResult{
		UserID:       userID,
		JTI:          jti,
		AccessToken:  access,
		RefreshToken: refreshToken,
		Record:       created,
	}
}

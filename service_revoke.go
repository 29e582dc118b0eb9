package goToken

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/refresh"
)

// Revoke invalidates one refresh record by jti and denies the pair's shared
// identifier in the ledger, so the access token minted alongside it dies too.
// Revoking an already-terminal record is idempotent.
func (s *Service) Revoke(ctx context.Context, jti, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if reason == "" {
		reason = "revoked"
	}

	res := flows.RunRevoke(ctx, jti, reason, s.revokeDeps())
	if res.Failure != flows.RevokeFailureNone {
		s.emitAudit(ctx, "token_revoked", res.UserID, jti, DeviceInfo{}, reason, false, res.Err)
		return revokeError(res)
	}

	s.metrics.Inc(MetricRevoke)
	s.metrics.Add(MetricTokensRevoked, uint64(res.Count))
	s.emitAudit(ctx, "token_revoked", res.UserID, jti, DeviceInfo{}, reason, true, nil)
	return nil
}

// RevokeAllForUser revokes every live refresh record of the user and mirrors
// the whole set into the ledger. excludeJTI spares one token for "logout
// everywhere else". Returns the number of records transitioned to REVOKED.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64, reason, excludeJTI string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if reason == "" {
		reason = "revoked_all"
	}

	res := flows.RunRevokeAllForUser(ctx, userID, reason, excludeJTI, s.revokeDeps())
	if res.Failure != flows.RevokeFailureNone {
		s.emitAudit(ctx, "tokens_revoked_all", userID, "", DeviceInfo{}, reason, false, res.Err)
		return res.Count, res.Err
	}

	s.metrics.Inc(MetricRevokeAll)
	s.metrics.Add(MetricTokensRevoked, uint64(res.Count))
	s.emitAudit(ctx, "tokens_revoked_all", userID, "", DeviceInfo{}, reason, true, nil)
	return res.Count, nil
}

// RevokeAllForDevice is [Service.RevokeAllForUser] scoped to one device
// identifier across users.
func (s *Service) RevokeAllForDevice(ctx context.Context, deviceID, reason string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if reason == "" {
		reason = "revoked_device"
	}

	res := flows.RunRevokeAllForDevice(ctx, deviceID, reason, s.revokeDeps())
	if res.Failure != flows.RevokeFailureNone {
		s.emitAudit(ctx, "tokens_revoked_all", 0, "", DeviceInfo{DeviceID: deviceID}, reason, false, res.Err)
		return res.Count, res.Err
	}

	s.metrics.Inc(MetricRevokeAll)
	s.metrics.Add(MetricTokensRevoked, uint64(res.Count))
	s.emitAudit(ctx, "tokens_revoked_all", 0, "", DeviceInfo{DeviceID: deviceID}, reason, true, nil)
	return res.Count, nil
}

func revokeError(res flows.RevokeResult) error {
	if res.Failure == flows.RevokeFailureUnknownRecord ||
		errors.Is(res.Err, refresh.ErrRecordNotFound) {
		return fmt.Errorf("%w: no lifecycle record", ErrTokenInvalid)
	}
	return res.Err
}

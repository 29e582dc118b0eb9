package goToken

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goToken/internal/flows"
)

// Refresh rotates a refresh token: the presented token is verified, its
// record consumed through the store's conditional save, and a successor pair
// issued on the same chain. Presenting a token that was already rotated or
// revoked is treated as a security incident; the whole chain is revoked and
// denied before [ErrSecurityIncident] is returned.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := s.ready(); err != nil {
		return TokenPair{}, err
	}

	res := flows.RunRefresh(ctx, refreshToken, s.refreshDeps())
	if res.Failure != flows.RefreshFailureNone {
		return TokenPair{}, s.refreshFailure(ctx, res)
	}

	s.metrics.Inc(MetricRefreshSuccess)
	s.emitAudit(ctx, "token_refreshed", res.UserID, res.NewJTI, DeviceInfo{}, "", true, nil)

	return TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		JTI:          res.NewJTI,
	}, nil
}

func (s *Service) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureReuse:
		s.metrics.Inc(MetricReuseDetected)
		s.metrics.Add(MetricChainTokensRevoked, uint64(res.ChainRevoked))
		s.emitAudit(ctx, "token_reuse_detected", res.UserID, res.UsedJTI, DeviceInfo{},
			flows.ChainReuseReason, false, res.Err)
		if res.Err != nil {
			return fmt.Errorf("%w: chain revocation incomplete: %v", ErrSecurityIncident, res.Err)
		}
		return ErrSecurityIncident

	case flows.RefreshFailureRateLimited:
		s.metrics.Inc(MetricRefreshRateLimited)
		s.emitAudit(ctx, "token_refresh_denied", res.UserID, res.UsedJTI, DeviceInfo{}, "rate_limited", false, res.Err)
		return fmt.Errorf("%w: %v", ErrRefreshRateLimited, res.Err)

	case flows.RefreshFailureRevoked:
		s.metrics.Inc(MetricRefreshFailure)
		s.emitAudit(ctx, "token_refresh_denied", res.UserID, res.UsedJTI, DeviceInfo{}, "revoked", false, nil)
		return ErrTokenRevoked

	case flows.RefreshFailureExpired:
		s.metrics.Inc(MetricRefreshFailure)
		if res.Err != nil {
			return res.Err
		}
		return ErrTokenExpired

	case flows.RefreshFailureUnknownRecord:
		// A signature-valid token with no lifecycle record is indistinguishable
		// from a forged one to the caller.
		s.metrics.Inc(MetricRefreshFailure)
		s.emitAudit(ctx, "token_refresh_denied", res.UserID, res.UsedJTI, DeviceInfo{}, "unknown_record", false, res.Err)
		return fmt.Errorf("%w: no lifecycle record", ErrTokenInvalid)

	default:
		s.metrics.Inc(MetricRefreshFailure)
		if res.Err != nil {
			return res.Err
		}
		return ErrTokenValidationFailed
	}
}

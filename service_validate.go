package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
)

// ValidateAccessToken verifies an access token cryptographically and then
// against the revocation ledger. Ledger membership always wins: a
// signature-valid, unexpired token whose jti was denied fails with
// [ErrTokenRevoked].
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := flows.RunValidate(ctx, accessToken, flows.ValidateDeps{
		Codec:    s.codec,
		Denylist: s.ledger,
	})
	s.metrics.Observe(MetricValidateLatency, time.Since(start))

	switch res.Failure {
	case flows.ValidateFailureNone:
		s.metrics.Inc(MetricValidateSuccess)
		return res.Claims, nil

	case flows.ValidateFailureRevoked:
		s.metrics.Inc(MetricValidateRevoked)
		s.emitAudit(ctx, "token_validate_denied", 0, "", DeviceInfo{}, "revoked", false, nil)
		return nil, ErrTokenRevoked

	default:
		s.metrics.Inc(MetricValidateFailure)
		return nil, res.Err
	}
}

package goToken

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goToken/internal/flows"
)

// Issue mints a new access/refresh pair for the user and persists the ACTIVE
// refresh record that anchors a fresh rotation chain. Device metadata missing
// from the argument is filled from the context helpers ([WithClientIP],
// [WithUserAgent]).
func (s *Service) Issue(ctx context.Context, userID int64, device DeviceInfo, extra map[string]any) (TokenPair, error) {
	if err := s.ready(); err != nil {
		return TokenPair{}, err
	}

	device = deviceFromContext(ctx, device)

	res := flows.RunIssue(ctx, userID, device, extra, "", s.issueDeps())
	if res.Failure != flows.IssueFailureNone {
		s.metrics.Inc(MetricIssueFailure)
		s.emitAudit(ctx, "token_issued", userID, res.JTI, device, "", false, res.Err)
		return TokenPair{}, issueError(res)
	}

	s.metrics.Inc(MetricIssueSuccess)
	s.emitAudit(ctx, "token_issued", userID, res.JTI, device, "", true, nil)

	return TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		JTI:          res.JTI,
	}, nil
}

// issueError collapses every issue failure into the generation taxonomy:
// callers of Issue cannot act on the distinction between a signing failure
// and a store failure, only operators can, and they get the wrapped cause.
func issueError(res flows.IssueResult) error {
	if res.Err == nil {
		return ErrTokenGeneration
	}
	return fmt.Errorf("%w: %v", ErrTokenGeneration, res.Err)
}

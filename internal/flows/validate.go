package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureExpired
	ValidateFailureUnauthorized
	ValidateFailureRevoked
	ValidateFailureLedger
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Codec    Codec
	Denylist Denylist
}

// RunValidate verifies an access token cryptographically, then checks the
// revocation ledger. Ledger membership always wins: a signature-valid,
// unexpired token whose jti is denied is rejected.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Codec.Validate(tokenStr, jwt.TypeAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}

	revoked, err := deps.Denylist.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureLedger, Err: err}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked}
	}

	return ValidateResult{Claims: claims}
}

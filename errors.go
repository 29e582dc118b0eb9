package goToken

import (
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/refresh"
)

var (
	// ErrConfiguration is returned by [Builder.Build] when the configuration
	// is invalid or the signing key pair does not match.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrServiceNotReady is returned when a Service method is called on a
	// nil or closed service.
	ErrServiceNotReady = errors.New("service not initialized")

	// ErrTokenInvalid covers malformed tokens, mistyped claims, and tokens
	// whose lifecycle record cannot be located.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrTokenExpired matches any expiry failure. The concrete error is a
	// [*jwt.ExpiredError] carrying the expired-at timestamp.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenValidationFailed covers bad signatures and issuer/audience
	// mismatches.
	ErrTokenValidationFailed = jwt.ErrTokenValidationFailed
	// ErrTokenGeneration is returned when signing or persisting a new token
	// pair fails.
	ErrTokenGeneration = jwt.ErrTokenGeneration

	// ErrTokenRevoked is returned for tokens denied by the revocation ledger.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSecurityIncident is returned when refresh token reuse is detected.
	// The presented token's whole rotation chain has been revoked by the
	// time the caller sees this error.
	ErrSecurityIncident = errors.New("token reuse detected")
	// ErrConcurrentModification is the conditional-save race signal from the
	// refresh store. The Service folds it into [ErrSecurityIncident] during
	// Refresh; it surfaces directly only from administrative operations.
	ErrConcurrentModification = refresh.ErrConcurrentModification
	// ErrRefreshRateLimited is returned when rotation attempts for one token
	// exceed the configured budget inside the cooldown window.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
)

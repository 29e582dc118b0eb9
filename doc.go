// Package goToken provides a token lifecycle subsystem: JWT access tokens
// paired with rotating refresh tokens, replay detection with chain-wide
// revocation, and a revocation ledger checked on every validation.
//
// The package is designed for concurrent server workloads: Service methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface. It exposes [Service], [Builder], [Config],
// and value types (TokenPair, MetricsSnapshot, SecurityReport). All internal
// coordination — flow orchestration, rate limiting, audit dispatch — lives
// under internal/ and is never exported. Domain models live in jwt/,
// refresh/, and ledger/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles, or store internals in its public API.
//   - Perform I/O outside of Service methods (construction via Builder is
//     allocation-only until Build, which probes the signing key pair and may
//     open a Postgres pool).
//   - Import any sub-package that re-imports goToken (no import cycles).
//
// # Performance contract
//
// ValidateAccessToken is the hot path: one signature verification plus one
// ledger membership lookup. Refresh is allowed the conditional-save round
// trip plus issuance. Ledger scans (Stats, Search) and sweeps never run on
// the request path.
package goToken

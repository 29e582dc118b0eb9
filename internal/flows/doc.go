// Package flows contains pure-function orchestrators for every Service
// operation.
//
// Each flow function (RunIssue, RunRefresh, RunRevoke, RunValidate) accepts
// a typed dependency struct and returns a result value without side-effects
// beyond those dependencies. This design enables exhaustive unit testing
// with in-memory collaborators and keeps the Service type thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, the refresh record store, the
// revocation ledger, and the rate limiter. They do NOT own any of these
// resources — ownership stays with the Service.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Emit audit events or metrics — the Service maps results to both.
package flows

// Package refresh implements the durable state machine for refresh tokens:
// one immutable record per issued refresh token, plus Redis, Postgres, and
// in-memory store implementations.
//
// # Record lifecycle
//
// ACTIVE -> USED (successful rotation, terminal) or ACTIVE -> REVOKED
// (logout / security, terminal). EXPIRED is derived from ExpiresAt at read
// time and never driven by this package. State transitions return new record
// values; nothing mutates in place, so the optimistic conditional update in
// [Store.Save] can detect concurrent rotation races by comparing statuses.
//
// # Architecture boundaries
//
// This package owns record invariants and persistence. Rotation policy,
// reuse detection, and chain revocation live in the Service; signature
// verification lives in the jwt package.
//
// # What this package must NOT do
//
//   - Store raw refresh tokens (only their SHA-256 hashes).
//   - Verify token signatures or consult the revocation ledger.
//   - Run cleanup inline with request handling.
package refresh

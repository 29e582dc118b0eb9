// Package jwt is the cryptographic boundary of goToken: it signs and verifies
// compact tokens with configured keys and lifts their payloads into typed
// claim sets suitable for low-latency validation paths.
//
// # Architecture boundaries
//
// This package owns signing, verification, claim-shape validation, and the
// startup key-pair probe. It knows nothing about storage or revocation.
//
// # What this package must NOT do
//
//   - Perform any I/O (no Redis, no SQL, no network).
//   - Consult the revocation ledger or refresh-token records.
//   - Authorize anything from [Manager.ParseUnsafe] output.
package jwt

// Package ledger implements the revocation denylist consulted on every
// protected request: an append-mostly registry of invalidated token
// identifiers with O(1) membership checks, batch operations, and
// expiry-bounded growth.
//
// # Capacity discipline
//
// Entries carry the expiry of the token they deny, so an entry is pointless
// once that token would have expired anyway. The Redis implementation lets
// keys age out via TTL; CleanupExpiredEntries and CleanupOldEntries reclaim
// indexes and enforce a retention window, and EvictOldest bounds growth when
// the configured size cap is exceeded.
//
// # Architecture boundaries
//
// Membership lookups (IsRevoked, IsTokenHashRevoked, batch variants) are
// request-path and must stay a single round trip. Stats, Search, and the
// cleanup family are operational surface for incident response and sweep
// jobs; they may scan.
//
// # What this package must NOT do
//
//   - Verify token signatures or decode claims.
//   - Decide revocation policy; callers supply entries and reasons.
package ledger

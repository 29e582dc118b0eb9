package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedEntry(t *testing.T, l Ledger, jti string, userID int64, deviceID, reason string) Entry {
	t.Helper()
	entry, err := NewEntry(jti, "", userID, deviceID, reason, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	added, err := l.Add(context.Background(), entry)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatalf("entry %s not added", jti)
	}
	return entry
}

func TestNewEntryValidation(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	if _, err := NewEntry("", "", 1, "", "logout", expiry); !errors.Is(err, ErrEntryInvalid) {
		t.Fatalf("expected ErrEntryInvalid for missing jti, got %v", err)
	}
	if _, err := NewEntry("jti-1", "", 0, "", "logout", expiry); !errors.Is(err, ErrEntryInvalid) {
		t.Fatalf("expected ErrEntryInvalid for zero user, got %v", err)
	}
	if _, err := NewEntry("jti-1", "", 1, "", "", expiry); !errors.Is(err, ErrEntryInvalid) {
		t.Fatalf("expected ErrEntryInvalid for missing reason, got %v", err)
	}
	if _, err := NewEntry("jti-1", "", 1, "", "logout", time.Time{}); !errors.Is(err, ErrEntryInvalid) {
		t.Fatalf("expected ErrEntryInvalid for missing expiry, got %v", err)
	}

	entry, err := NewEntry("jti-1", "", 1, "", "logout", expiry)
	if err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Fatal("entry ID not assigned")
	}
	if entry.BlacklistedAt.IsZero() {
		t.Fatal("blacklisted-at not stamped")
	}
}

func TestMemoryLedgerMembership(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	seedEntry(t, l, "jti-bl-1", 1, "", "logout")

	revoked, err := l.IsRevoked(ctx, "jti-bl-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	revoked, err = l.IsRevoked(ctx, "jti-bl-missing")
	if err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}

	// Duplicate add is a no-op.
	dup, _ := NewEntry("jti-bl-1", "", 1, "", "other", time.Now().Add(time.Hour))
	added, err := l.Add(ctx, dup)
	if err != nil {
		t.Fatalf("dup add: %v", err)
	}
	if added {
		t.Fatal("duplicate jti reported as added")
	}
}

func TestMemoryLedgerTokenHashIndex(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	entry, err := NewEntry("jti-bl-2", "deadbeef", 1, "", "logout", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if _, err := l.Add(ctx, entry); err != nil {
		t.Fatalf("add: %v", err)
	}

	revoked, err := l.IsTokenHashRevoked(ctx, "deadbeef")
	if err != nil || !revoked {
		t.Fatalf("expected hash revoked, got %v %v", revoked, err)
	}
	revoked, _ = l.IsTokenHashRevoked(ctx, "cafebabe")
	if revoked {
		t.Fatal("unknown hash reported revoked")
	}
}

func TestMemoryLedgerBatchOps(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	entries := make([]Entry, 0, 3)
	for _, jti := range []string{"jti-bl-a", "jti-bl-b", "jti-bl-c"} {
		e, err := NewEntry(jti, "", 2, "", "chain", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("new entry: %v", err)
		}
		entries = append(entries, e)
	}

	added, err := l.AddBatch(ctx, entries)
	if err != nil || added != 3 {
		t.Fatalf("expected 3 added, got %d %v", added, err)
	}
	// Re-adding the same batch adds nothing.
	added, err = l.AddBatch(ctx, entries)
	if err != nil || added != 0 {
		t.Fatalf("expected 0 added on replay, got %d %v", added, err)
	}

	result, err := l.IsRevokedBatch(ctx, []string{"jti-bl-a", "jti-bl-b", "jti-bl-x"})
	if err != nil {
		t.Fatalf("batch check: %v", err)
	}
	if !result["jti-bl-a"] || !result["jti-bl-b"] || result["jti-bl-x"] {
		t.Fatalf("batch membership wrong: %v", result)
	}

	removed, err := l.RemoveBatch(ctx, []string{"jti-bl-a", "jti-bl-x"})
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d %v", removed, err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-bl-a"); revoked {
		t.Fatal("removed entry still revoked")
	}
}

func TestMemoryLedgerRevokeAllForUserRestampsReason(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	keep := seedEntry(t, l, "jti-bl-keep", 3, "dev-a", "logout")
	seedEntry(t, l, "jti-bl-u1", 3, "dev-a", "logout")
	seedEntry(t, l, "jti-bl-u2", 3, "dev-b", "logout")
	seedEntry(t, l, "jti-bl-other", 4, "dev-a", "logout")

	count, err := l.RevokeAllForUser(ctx, 3, "security_breach", keep.JTI)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 restamped, got %d %v", count, err)
	}

	results, err := l.Search(ctx, SearchCriteria{UserID: 3, Reason: "security_breach"}, 0, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 breach entries, got %d", len(results))
	}
}

func TestMemoryLedgerCleanupExpiredEntries(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	entry := seedEntry(t, l, "jti-bl-exp", 5, "", "logout")

	count, err := l.CleanupExpiredEntries(ctx, entry.ExpiresAt.Add(time.Minute))
	if err != nil || count != 1 {
		t.Fatalf("expected 1 swept, got %d %v", count, err)
	}
	if revoked, _ := l.IsRevoked(ctx, entry.JTI); revoked {
		t.Fatal("swept entry still revoked")
	}
}

func TestMemoryLedgerEvictionAndSizeInfo(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	for i, jti := range []string{"jti-bl-e1", "jti-bl-e2", "jti-bl-e3"} {
		entry := seedEntry(t, l, jti, 6, "", "logout")
		// Stagger blacklist times so eviction order is deterministic.
		entry.BlacklistedAt = time.Now().Add(time.Duration(i) * time.Minute)
		l.entries[jti] = entry
	}

	exceeded, err := l.IsSizeExceeded(ctx, 2)
	if err != nil || !exceeded {
		t.Fatalf("expected size exceeded, got %v %v", exceeded, err)
	}

	info, err := l.SizeInfo(ctx, 2)
	if err != nil {
		t.Fatalf("size info: %v", err)
	}
	if info.Entries != 3 || info.MaxEntries != 2 || !info.Exceeded {
		t.Fatalf("unexpected size info: %+v", info)
	}

	evicted, err := l.EvictOldest(ctx, 2)
	if err != nil || evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d %v", evicted, err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-bl-e1"); revoked {
		t.Fatal("oldest entry survived eviction")
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-bl-e3"); !revoked {
		t.Fatal("newest entry was evicted")
	}
}

func TestMemoryLedgerStats(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	seedEntry(t, l, "jti-bl-s1", 7, "", "logout")
	seedEntry(t, l, "jti-bl-s2", 7, "", "logout")
	seedEntry(t, l, "jti-bl-s3", 8, "", "token_rotation_reuse")

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total 3, got %d", stats.Total)
	}
	if stats.ByReason["logout"] != 2 || stats.ByReason["token_rotation_reuse"] != 1 {
		t.Fatalf("unexpected reason counts: %v", stats.ByReason)
	}
	if stats.OldestAt.IsZero() || stats.NewestAt.Before(stats.OldestAt) {
		t.Fatalf("bad time bounds: %+v", stats)
	}
}

func TestMemoryLedgerSearchPaging(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	for _, jti := range []string{"jti-bl-p1", "jti-bl-p2", "jti-bl-p3", "jti-bl-p4"} {
		seedEntry(t, l, jti, 9, "dev-z", "incident")
	}

	page, err := l.Search(ctx, SearchCriteria{DeviceID: "dev-z"}, 2, 0)
	if err != nil || len(page) != 2 {
		t.Fatalf("expected page of 2, got %d %v", len(page), err)
	}
	rest, err := l.Search(ctx, SearchCriteria{DeviceID: "dev-z"}, 0, 2)
	if err != nil || len(rest) != 2 {
		t.Fatalf("expected remainder of 2, got %d %v", len(rest), err)
	}
	past, err := l.Search(ctx, SearchCriteria{DeviceID: "dev-z"}, 10, 100)
	if err != nil || len(past) != 0 {
		t.Fatalf("expected empty page past end, got %d %v", len(past), err)
	}
}

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLedger(client, "gt-test:bl"), mr
}

func TestRedisLedgerMembership(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	entry := seedEntry(t, l, "jti-rbl-1", 1, "dev-a", "logout")

	revoked, err := l.IsRevoked(ctx, entry.JTI)
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	revoked, err = l.IsRevoked(ctx, "jti-rbl-missing")
	if err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}

	dup, _ := NewEntry(entry.JTI, "", 1, "", "other", time.Now().Add(time.Hour))
	added, err := l.Add(ctx, dup)
	if err != nil || added {
		t.Fatalf("duplicate add should be a no-op, got %v %v", added, err)
	}
}

func TestRedisLedgerAddExpiredEntryIsNoop(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	entry, err := NewEntry("jti-rbl-moot", "", 2, "dev", "logout", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	entry.ExpiresAt = time.Now().Add(-time.Minute)

	added, err := l.Add(ctx, entry)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added {
		t.Fatal("denying an expired token should be a no-op")
	}
}

func TestRedisLedgerTokenHashIndex(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	entry, err := NewEntry("jti-rbl-2", "feedface", 1, "", "logout", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if _, err := l.Add(ctx, entry); err != nil {
		t.Fatalf("add: %v", err)
	}

	revoked, err := l.IsTokenHashRevoked(ctx, "feedface")
	if err != nil || !revoked {
		t.Fatalf("expected hash revoked, got %v %v", revoked, err)
	}
}

func TestRedisLedgerBatchOps(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	entries := make([]Entry, 0, 3)
	for _, jti := range []string{"jti-rbl-a", "jti-rbl-b", "jti-rbl-c"} {
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

	result, err := l.IsRevokedBatch(ctx, []string{"jti-rbl-a", "jti-rbl-c", "jti-rbl-x"})
	if err != nil {
		t.Fatalf("batch check: %v", err)
	}
	if !result["jti-rbl-a"] || !result["jti-rbl-c"] || result["jti-rbl-x"] {
		t.Fatalf("batch membership wrong: %v", result)
	}

	removed, err := l.RemoveBatch(ctx, []string{"jti-rbl-a", "jti-rbl-x"})
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d %v", removed, err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-rbl-a"); revoked {
		t.Fatal("removed entry still revoked")
	}
}

func TestRedisLedgerRevokeAllForUserRestampsReason(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	keep := seedEntry(t, l, "jti-rbl-keep", 3, "dev-a", "logout")
	seedEntry(t, l, "jti-rbl-u1", 3, "dev-a", "logout")
	seedEntry(t, l, "jti-rbl-u2", 3, "dev-b", "logout")

	count, err := l.RevokeAllForUser(ctx, 3, "security_breach", keep.JTI)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 restamped, got %d %v", count, err)
	}

	results, err := l.Search(ctx, SearchCriteria{Reason: "security_breach"}, 0, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 breach entries, got %d", len(results))
	}
}

func TestRedisLedgerEntriesAgeOutViaTTL(t *testing.T) {
	l, mr := newRedisLedger(t)
	ctx := context.Background()

	entry := seedEntry(t, l, "jti-rbl-ttl", 4, "", "logout")

	mr.FastForward(2 * time.Hour)

	revoked, err := l.IsRevoked(ctx, entry.JTI)
	if err != nil || revoked {
		t.Fatalf("expected TTL expiry, got %v %v", revoked, err)
	}

	// The sweep reclaims the leftover index state.
	count, err := l.CleanupExpiredEntries(ctx, time.Now())
	if err != nil || count != 1 {
		t.Fatalf("expected 1 reclaimed, got %d %v", count, err)
	}
	info, err := l.SizeInfo(ctx, 0)
	if err != nil || info.Entries != 0 {
		t.Fatalf("expected empty index, got %+v %v", info, err)
	}
}

func TestRedisLedgerEvictionAndStats(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	oldest, _ := NewEntry("jti-rbl-e1", "", 5, "", "logout", time.Now().Add(time.Hour))
	oldest.BlacklistedAt = time.Now().Add(-2 * time.Hour)
	mid, _ := NewEntry("jti-rbl-e2", "", 5, "", "logout", time.Now().Add(time.Hour))
	mid.BlacklistedAt = time.Now().Add(-time.Hour)
	newest, _ := NewEntry("jti-rbl-e3", "", 5, "", "token_rotation_reuse", time.Now().Add(time.Hour))

	for _, e := range []Entry{oldest, mid, newest} {
		if _, err := l.Add(ctx, e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	exceeded, err := l.IsSizeExceeded(ctx, 2)
	if err != nil || !exceeded {
		t.Fatalf("expected exceeded, got %v %v", exceeded, err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.ByReason["logout"] != 2 || stats.ByReason["token_rotation_reuse"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	evicted, err := l.EvictOldest(ctx, 2)
	if err != nil || evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d %v", evicted, err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-rbl-e1"); revoked {
		t.Fatal("oldest entry survived eviction")
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-rbl-e3"); !revoked {
		t.Fatal("newest entry was evicted")
	}
}

func TestRedisLedgerCleanupOldEntries(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()

	stale, _ := NewEntry("jti-rbl-old", "", 6, "", "logout", time.Now().Add(time.Hour))
	stale.BlacklistedAt = time.Now().AddDate(0, 0, -40)
	fresh, _ := NewEntry("jti-rbl-new", "", 6, "", "logout", time.Now().Add(time.Hour))

	for _, e := range []Entry{stale, fresh} {
		if _, err := l.Add(ctx, e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	count, err := l.CleanupOldEntries(ctx, 30)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 removed, got %d %v", count, err)
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-rbl-old"); revoked {
		t.Fatal("stale entry survived retention sweep")
	}
	if revoked, _ := l.IsRevoked(ctx, "jti-rbl-new"); !revoked {
		t.Fatal("fresh entry removed by retention sweep")
	}
}

//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goToken/refresh"
)

// Both store implementations must agree on CAS, lookup, and bulk revocation
// semantics. Each subtest runs against memory and Redis backends.
func runOnStores(t *testing.T, name string, fn func(t *testing.T, store refresh.FullStore)) {
	t.Run(name+"/memory", func(t *testing.T) {
		fn(t, refresh.NewMemoryStore())
	})
	t.Run(name+"/redis", func(t *testing.T) {
		fn(t, refresh.NewRedisStore(newIntegrationRedis(t), "gt:rt"))
	})
}

func TestStoreConsistencyCreateAndLookup(t *testing.T) {
	runOnStores(t, "create-lookup", func(t *testing.T, store refresh.FullStore) {
		ctx := context.Background()

		rec := makeRecord(t, "jti-lookup-1", 1, "token-a", refresh.DeviceInfo{DeviceID: "dev-1"}, "")
		created, err := store.Create(ctx, rec)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		byJTI, err := store.FindByJTI(ctx, created.JTI)
		if err != nil {
			t.Fatalf("FindByJTI failed: %v", err)
		}
		if byJTI.UserID != 1 || byJTI.Status != refresh.StatusActive {
			t.Fatalf("unexpected record: %+v", byJTI)
		}

		byHash, err := store.FindByTokenHash(ctx, rec.TokenHash)
		if err != nil {
			t.Fatalf("FindByTokenHash failed: %v", err)
		}
		if byHash.JTI != created.JTI {
			t.Fatalf("hash lookup returned %q, want %q", byHash.JTI, created.JTI)
		}

		if _, err := store.Create(ctx, rec); !errors.Is(err, refresh.ErrDuplicateJTI) {
			t.Fatalf("expected ErrDuplicateJTI on second create, got %v", err)
		}
	})
}

func TestStoreConsistencySaveIsConditional(t *testing.T) {
	runOnStores(t, "conditional-save", func(t *testing.T, store refresh.FullStore) {
		ctx := context.Background()

		rec := makeRecord(t, "jti-cas-1", 2, "token-b", refresh.DeviceInfo{DeviceID: "dev-1"}, "")
		if _, err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		used, err := rec.MarkUsed(time.Now())
		if err != nil {
			t.Fatalf("MarkUsed failed: %v", err)
		}
		if err := store.Save(ctx, used, refresh.StatusActive); err != nil {
			t.Fatalf("first Save failed: %v", err)
		}

		// Second writer lost the race. The stored record is no longer ACTIVE.
		if err := store.Save(ctx, used, refresh.StatusActive); !errors.Is(err, refresh.ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}

		got, err := store.FindByJTI(ctx, rec.JTI)
		if err != nil {
			t.Fatalf("FindByJTI failed: %v", err)
		}
		if got.Status != refresh.StatusUsed {
			t.Fatalf("status = %s, want %s", got.Status, refresh.StatusUsed)
		}
	})
}

func TestStoreConsistencyRevokeAllForUser(t *testing.T) {
	runOnStores(t, "revoke-all-user", func(t *testing.T, store refresh.FullStore) {
		ctx := context.Background()

		for _, jti := range []string{"jti-ru-a", "jti-ru-b", "jti-ru-keep"} {
			rec := makeRecord(t, jti, 3, "token-ru-"+jti, refresh.DeviceInfo{DeviceID: "dev-1"}, "")
			if _, err := store.Create(ctx, rec); err != nil {
				t.Fatalf("Create %s failed: %v", jti, err)
			}
		}
		other := makeRecord(t, "jti-ru-other", 4, "token-ru-other", refresh.DeviceInfo{DeviceID: "dev-2"}, "")
		if _, err := store.Create(ctx, other); err != nil {
			t.Fatalf("Create other failed: %v", err)
		}

		count, err := store.RevokeAllForUser(ctx, 3, "logout_all", "jti-ru-keep")
		if err != nil {
			t.Fatalf("RevokeAllForUser failed: %v", err)
		}
		if count != 2 {
			t.Fatalf("revoked %d records, want 2", count)
		}

		kept, err := store.FindByJTI(ctx, "jti-ru-keep")
		if err != nil {
			t.Fatalf("FindByJTI kept failed: %v", err)
		}
		if kept.Status != refresh.StatusActive {
			t.Fatalf("excluded record status = %s, want active", kept.Status)
		}

		foreign, err := store.FindByJTI(ctx, "jti-ru-other")
		if err != nil {
			t.Fatalf("FindByJTI other failed: %v", err)
		}
		if foreign.Status != refresh.StatusActive {
			t.Fatalf("other user's record status = %s, want active", foreign.Status)
		}

		revoked, err := store.FindByJTI(ctx, "jti-ru-a")
		if err != nil {
			t.Fatalf("FindByJTI revoked failed: %v", err)
		}
		if revoked.Status != refresh.StatusRevoked || revoked.RevokedReason != "logout_all" {
			t.Fatalf("unexpected revoked record: %+v", revoked)
		}
	})
}

func TestStoreConsistencyListByUser(t *testing.T) {
	runOnStores(t, "list-by-user", func(t *testing.T, store refresh.FullStore) {
		ctx := context.Background()

		for _, jti := range []string{"jti-ls-a", "jti-ls-b"} {
			rec := makeRecord(t, jti, 5, "token-ls-"+jti, refresh.DeviceInfo{DeviceID: "dev-1"}, "")
			if _, err := store.Create(ctx, rec); err != nil {
				t.Fatalf("Create %s failed: %v", jti, err)
			}
		}

		records, err := store.ListByUser(ctx, 5, 10)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("listed %d records, want 2", len(records))
		}

		limited, err := store.ListByUser(ctx, 5, 1)
		if err != nil {
			t.Fatalf("ListByUser with limit failed: %v", err)
		}
		if len(limited) != 1 {
			t.Fatalf("listed %d records with limit 1, want 1", len(limited))
		}
	})
}

func TestStoreConsistencyUnknownJTI(t *testing.T) {
	runOnStores(t, "unknown-jti", func(t *testing.T, store refresh.FullStore) {
		ctx := context.Background()

		if _, err := store.FindByJTI(ctx, "jti-never-created"); !errors.Is(err, refresh.ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

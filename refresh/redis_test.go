package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "gt-test"), mr
}

func TestRedisStoreCreateAndLookups(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	created := seedRecord(t, store, "jti-rds-00000001", 11, "dev-a")
	if created.ID == "" {
		t.Fatal("store must assign a record ID")
	}

	byJTI, err := store.FindByJTI(ctx, created.JTI)
	if err != nil {
		t.Fatalf("find by jti: %v", err)
	}
	if byJTI.UserID != 11 || byJTI.Status != StatusActive || byJTI.Device.DeviceID != "dev-a" {
		t.Fatalf("round-trip mismatch: %+v", byJTI)
	}

	byHash, err := store.FindByTokenHash(ctx, created.TokenHash)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if byHash.JTI != created.JTI {
		t.Fatal("hash index points at wrong record")
	}

	rec2, _ := NewRecord(created.JTI, 11, testHash("other-seed-xy"), time.Now().Add(time.Hour), DeviceInfo{}, "")
	if _, err := store.Create(ctx, rec2); !errors.Is(err, ErrDuplicateJTI) {
		t.Fatalf("expected ErrDuplicateJTI, got %v", err)
	}

	if _, err := store.FindByJTI(ctx, "jti-rds-missing1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRedisStoreSaveCAS(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := seedRecord(t, store, "jti-rds-00000002", 11, "")

	used, err := created.MarkUsed(time.Now())
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if err := store.Save(ctx, used, StatusActive); err != nil {
		t.Fatalf("first save: %v", err)
	}

	if err := store.Save(ctx, used, StatusActive); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	stored, err := store.FindByJTI(ctx, created.JTI)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != StatusUsed {
		t.Fatalf("expected USED after save, got %s", stored.Status)
	}

	missing := used
	missing.JTI = "jti-rds-missing2"
	if err := store.Save(ctx, missing, StatusActive); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRedisStoreRevokeAllForUser(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	keep := seedRecord(t, store, "jti-rds-keep0001", 12, "dev-a")
	seedRecord(t, store, "jti-rds-gone0001", 12, "dev-a")
	seedRecord(t, store, "jti-rds-gone0002", 12, "dev-b")
	seedRecord(t, store, "jti-rds-other001", 13, "dev-a")

	count, err := store.RevokeAllForUser(ctx, 12, "logout_all", keep.JTI)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}

	kept, _ := store.FindByJTI(ctx, keep.JTI)
	if kept.Status != StatusActive {
		t.Fatal("excluded record was revoked")
	}
	gone, _ := store.FindByJTI(ctx, "jti-rds-gone0002")
	if gone.Status != StatusRevoked || gone.RevokedReason != "logout_all" || gone.RevokedAt.IsZero() {
		t.Fatalf("expected revoked record, got %+v", gone)
	}
	other, _ := store.FindByJTI(ctx, "jti-rds-other001")
	if other.Status != StatusActive {
		t.Fatal("other user's record was revoked")
	}
}

func TestRedisStoreRevokeAllForDevice(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	seedRecord(t, store, "jti-rds-deva0001", 14, "dev-a")
	seedRecord(t, store, "jti-rds-deva0002", 15, "dev-a")
	seedRecord(t, store, "jti-rds-devb0001", 14, "dev-b")

	count, err := store.RevokeAllForDevice(ctx, "dev-a", "device_lost")
	if err != nil {
		t.Fatalf("revoke device: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}
	b, _ := store.FindByJTI(ctx, "jti-rds-devb0001")
	if b.Status != StatusActive {
		t.Fatal("other device's record was revoked")
	}
}

func TestRedisStoreCleanupExpired(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	created := seedRecord(t, store, "jti-rds-dead0001", 16, "dev-a")

	count, err := store.CleanupExpired(ctx, created.ExpiresAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 swept, got %d", count)
	}
	if _, err := store.FindByJTI(ctx, created.JTI); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record key should be gone, got %v", err)
	}
	if _, err := store.FindByTokenHash(ctx, created.TokenHash); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("hash index should be gone, got %v", err)
	}
	recs, err := store.ListByUser(ctx, 16, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("user index should be empty, got %d", len(recs))
	}
}

func TestRedisStoreListScopes(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	seedRecord(t, store, "jti-rds-list0001", 17, "dev-a")
	seedRecord(t, store, "jti-rds-list0002", 17, "dev-a")
	seedRecord(t, store, "jti-rds-list0003", 17, "dev-b")

	byUser, err := store.ListByUser(ctx, 17, 0)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(byUser) != 3 {
		t.Fatalf("expected 3 user records, got %d", len(byUser))
	}

	byDevice, err := store.ListByDevice(ctx, "dev-a", 1)
	if err != nil {
		t.Fatalf("list by device: %v", err)
	}
	if len(byDevice) != 1 {
		t.Fatalf("expected limit applied, got %d", len(byDevice))
	}
}

func TestRedisStoreRecordsExpireWithRedisTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	created := seedRecord(t, store, "jti-rds-ttl00001", 18, "")

	mr.FastForward(2 * time.Hour)

	if _, err := store.FindByJTI(ctx, created.JTI); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected TTL expiry, got %v", err)
	}
}

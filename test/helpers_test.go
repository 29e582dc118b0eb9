//go:build integration
// +build integration

package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/internal"
	"github.com/MrEthical07/goToken/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

func newIntegrationService(t *testing.T) *goToken.Service {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := goToken.Config{}
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "gotoken-integration"
	cfg.JWT.Audience = "api"
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.Ledger.RetentionDays = 90
	cfg.Ledger.EvictBatchSize = 1000

	svc, err := goToken.New().
		WithConfig(cfg).
		WithRedis(newIntegrationRedis(t)).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func makeRecord(t *testing.T, jti string, userID int64, token string, device refresh.DeviceInfo, parentJTI string) refresh.Record {
	t.Helper()

	rec, err := refresh.NewRecord(jti, userID, internal.HashTokenHex(token), time.Now().Add(time.Hour), device, parentJTI)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

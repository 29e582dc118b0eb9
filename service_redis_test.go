package goToken

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goToken/ledger"
	"github.com/MrEthical07/goToken/refresh"
)

func newRedisService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig(t)
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxRefreshAttempts = 20
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build redis service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestRedisServiceIssueRefreshValidate(t *testing.T) {
	svc := newRedisService(t, nil)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 5, DeviceInfo{DeviceID: "dev-r"}, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, next.AccessToken); err != nil {
		t.Fatalf("validate rotated access token: %v", err)
	}

	// The consumed token replays through the Lua conditional save.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSecurityIncident) {
		t.Fatalf("expected ErrSecurityIncident on redis-backed replay, got %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, next.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("chain successor should be revoked, got %v", err)
	}
}

func TestRedisServiceRefreshThrottle(t *testing.T) {
	svc := newRedisService(t, func(cfg *Config) {
		cfg.Security.MaxRefreshAttempts = 1
	})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 6, DeviceInfo{}, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// The throttle fires before reuse detection gets a look at the token.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("expected ErrRefreshRateLimited, got %v", err)
	}

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricRefreshRateLimited] != 1 {
		t.Fatalf("rate limited counter = %d, want 1", snap.Counters[MetricRefreshRateLimited])
	}
}

func TestRedisServiceThrottleRequiresRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EnableRefreshThrottle = true

	_, err := New().
		WithConfig(cfg).
		WithStore(refresh.NewMemoryStore()).
		WithLedger(ledger.NewMemoryLedger()).
		Build()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

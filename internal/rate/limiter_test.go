package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg), mr
}

func TestCheckRefreshWithinBudget(t *testing.T) {
	l, _ := newLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      3,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckRefresh(ctx, "jti-rl-1"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, err)
		}
	}
	if err := l.CheckRefresh(ctx, "jti-rl-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on 4th attempt, got %v", err)
	}

	// Other identifiers have their own window.
	if err := l.CheckRefresh(ctx, "jti-rl-2"); err != nil {
		t.Fatalf("independent jti rejected: %v", err)
	}
}

func TestCheckRefreshWindowExpires(t *testing.T) {
	l, mr := newLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      1,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	if err := l.CheckRefresh(ctx, "jti-rl-3"); err != nil {
		t.Fatalf("first attempt rejected: %v", err)
	}
	if err := l.CheckRefresh(ctx, "jti-rl-3"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.CheckRefresh(ctx, "jti-rl-3"); err != nil {
		t.Fatalf("attempt after window rejected: %v", err)
	}
}

func TestCheckRefreshDisabled(t *testing.T) {
	l, _ := newLimiter(t, Config{EnableRefreshThrottle: false})
	for i := 0; i < 10; i++ {
		if err := l.CheckRefresh(context.Background(), "jti-rl-4"); err != nil {
			t.Fatalf("disabled limiter rejected: %v", err)
		}
	}
}

func TestResetRefresh(t *testing.T) {
	l, _ := newLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      1,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	if err := l.CheckRefresh(ctx, "jti-rl-5"); err != nil {
		t.Fatalf("first attempt rejected: %v", err)
	}
	if err := l.ResetRefresh(ctx, "jti-rl-5"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckRefresh(ctx, "jti-rl-5"); err != nil {
		t.Fatalf("attempt after reset rejected: %v", err)
	}
}

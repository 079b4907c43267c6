package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/tenantgate/internal/storage/actor"
)

func newLimiter() *Limiter {
	return New(actor.NewRuntime(actor.NewMemoryStore()))
}

func TestApplyWindow(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name       string
		timestamps []int64
		windowMs   int64
		limit      int
		allowed    bool
		remaining  int
	}{
		{"empty history", nil, 60_000, 5, true, 4},
		{"under limit", []int64{now - 1000}, 60_000, 5, true, 3},
		{"at limit", []int64{now - 1, now - 2, now - 3}, 60_000, 3, false, 0},
		{"expired timestamps", []int64{now - 70_000}, 60_000, 1, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyWindow(tt.timestamps, now, tt.windowMs, tt.limit)
			if got.allowed != tt.allowed {
				t.Errorf("allowed = %v, want %v", got.allowed, tt.allowed)
			}
			if got.remaining != tt.remaining {
				t.Errorf("remaining = %d, want %d", got.remaining, tt.remaining)
			}
		})
	}
}

func TestApplyWindow_ResetAt(t *testing.T) {
	now := time.Now().UnixMilli()

	empty := applyWindow(nil, now, 60_000, 5)
	if empty.resetAt != now+60_000 {
		t.Errorf("resetAt with no history = %d, want %d", empty.resetAt, now+60_000)
	}

	newest := now - 5_000
	withHistory := applyWindow([]int64{now - 30_000, newest}, now, 60_000, 5)
	if withHistory.resetAt != newest+60_000 {
		t.Errorf("resetAt = %d, want newest+window = %d", withHistory.resetAt, newest+60_000)
	}
}

func TestCheck_DenialDoesNotGrowState(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 2, WindowSec: 60}
	now := time.Now()

	for i := 0; i < 2; i++ {
		d, err := limiter.Check(ctx, "acme", "chat", now, policy)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
	}

	first, err := limiter.Check(ctx, "acme", "chat", now, policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	second, err := limiter.Check(ctx, "acme", "chat", now, policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if first.Allowed || second.Allowed {
		t.Error("full window allowed a request")
	}
	// A denied check leaves storage unchanged, so the second denial
	// reports the same reset instant.
	if first.ResetAt != second.ResetAt {
		t.Errorf("resetAt drifted across denials: %d != %d", first.ResetAt, second.ResetAt)
	}
}

func TestCheck_SlidingWindowExpiry(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 1, WindowSec: 60}

	past := time.Now().Add(-70 * time.Second)
	if d, err := limiter.Check(ctx, "acme", "chat", past, policy); err != nil || !d.Allowed {
		t.Fatalf("seed check = %+v, %v", d, err)
	}

	d, err := limiter.Check(ctx, "acme", "chat", time.Now(), policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed {
		t.Error("timestamp outside the window still counted")
	}
}

func TestCheck_BurstOverridesSustained(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 60, WindowSec: 60, Burst: 5, BurstWindowSec: 5}
	now := time.Now()

	for i := 0; i < 5; i++ {
		d, err := limiter.Check(ctx, "acme", "chat", now, policy)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied before burst was full", i)
		}
	}

	d, err := limiter.Check(ctx, "acme", "chat", now, policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed {
		t.Error("burst window full but request allowed")
	}
	if want := now.UnixMilli() + 5_000; d.ResetAt != want {
		t.Errorf("resetAt = %d, want burst window reset %d", d.ResetAt, want)
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

func TestCheck_RemainingIsMinOfWindows(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 100, WindowSec: 60, Burst: 3, BurstWindowSec: 5}

	d, err := limiter.Check(ctx, "acme", "chat", time.Now(), policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Remaining != 2 {
		t.Errorf("remaining = %d, want burst remaining 2", d.Remaining)
	}
}

func TestCheck_KeysAreIsolated(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 1, WindowSec: 60}
	now := time.Now()

	if d, _ := limiter.Check(ctx, "acme", "chat", now, policy); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d, _ := limiter.Check(ctx, "acme", "chat", now, policy); d.Allowed {
		t.Fatal("acme over limit but allowed")
	}

	// Same key name under a different tenant has its own window.
	if d, _ := limiter.Check(ctx, "globex", "chat", now, policy); !d.Allowed {
		t.Error("tenant isolation broken: globex denied by acme's usage")
	}
}

func TestReset(t *testing.T) {
	limiter := newLimiter()
	ctx := context.Background()
	policy := Policy{Limit: 1, WindowSec: 60}
	now := time.Now()

	_, _ = limiter.Check(ctx, "acme", "chat", now, policy)
	if err := limiter.Reset(ctx, "acme", "chat"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	d, err := limiter.Check(ctx, "acme", "chat", now, policy)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed {
		t.Error("request denied after Reset()")
	}
}

// Package ratelimit implements a sliding-window admission check backed by
// the per-key actor runtime. One actor instance exists per (tenant,
// limiter key); the runtime serializes checks so concurrent requests for
// the same key never race on the stored timestamp set.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/tenantgate/internal/storage/actor"
)

// Policy describes the admission limits for one key. Burst is optional;
// zero disables the burst check.
type Policy struct {
	Limit          int
	WindowSec      int
	Burst          int
	BurstWindowSec int
}

// Decision is the outcome of a check. ResetAt is the unix-millisecond
// instant after which at least one slot frees up.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   int64
}

const stateKey = "timestamps"

// Limiter runs sliding-window checks on actor-owned timestamp records.
type Limiter struct {
	runtime *actor.Runtime
}

// New creates a limiter over the given actor runtime.
func New(runtime *actor.Runtime) *Limiter {
	return &Limiter{runtime: runtime}
}

type record struct {
	Timestamps []int64 `json:"timestamps"`
}

// windowResult is one window's evaluation against the stored timestamps.
type windowResult struct {
	allowed   bool
	remaining int
	resetAt   int64
	active    []int64
}

// applyWindow prunes timestamps to the trailing window ending at now and
// evaluates the limit. remaining accounts for the request being decided,
// so an allowed request at limit-1 active reports 0 remaining.
func applyWindow(timestamps []int64, now, windowMs int64, limit int) windowResult {
	cutoff := now - windowMs

	active := make([]int64, 0, len(timestamps))
	var newest int64
	for _, ts := range timestamps {
		if ts > cutoff {
			active = append(active, ts)
			if ts > newest {
				newest = ts
			}
		}
	}

	resetAt := now + windowMs
	if len(active) > 0 {
		resetAt = newest + windowMs
	}

	remaining := limit - len(active) - 1
	if remaining < 0 {
		remaining = 0
	}

	return windowResult{
		allowed:   len(active) < limit,
		remaining: remaining,
		resetAt:   resetAt,
		active:    active,
	}
}

// Check admits or denies one request at the given instant. On allow the
// instant is appended to the stored set exactly once; on deny the stored
// set is left unchanged. Any storage error must be treated as a denial by
// the caller (fail closed).
func (l *Limiter) Check(ctx context.Context, tenantID, key string, now time.Time, policy Policy) (Decision, error) {
	if policy.Limit <= 0 {
		return Decision{}, fmt.Errorf("rate limit policy for %s has no limit", key)
	}

	name := actor.Name(tenantID, "ratelimit:"+key)
	nowMs := now.UnixMilli()
	windowMs := int64(policy.WindowSec) * 1000
	burstWindowMs := int64(policy.BurstWindowSec) * 1000

	var decision Decision
	err := l.runtime.Do(ctx, name, func(h actor.Handle) error {
		var rec record
		if _, err := h.Get(ctx, stateKey, &rec); err != nil {
			return fmt.Errorf("load rate limit state: %w", err)
		}

		sustained := applyWindow(rec.Timestamps, nowMs, windowMs, policy.Limit)

		decision = Decision{
			Allowed:   sustained.allowed,
			Limit:     policy.Limit,
			Remaining: sustained.remaining,
			ResetAt:   sustained.resetAt,
		}
		retained := sustained.active

		if policy.Burst > 0 && burstWindowMs > 0 {
			burst := applyWindow(rec.Timestamps, nowMs, burstWindowMs, policy.Burst)
			decision.Allowed = sustained.allowed && burst.allowed
			if burst.remaining < decision.Remaining {
				decision.Remaining = burst.remaining
			}
			// Burst denial dictates the retry hint even when the sustained
			// window also denies.
			if !burst.allowed {
				decision.ResetAt = burst.resetAt
			}
			// Stored timestamps are pruned to the widest window so the next
			// burst evaluation still sees its history.
			if burstWindowMs > windowMs {
				retained = burst.active
			}
		}

		if !decision.Allowed {
			return nil
		}

		rec.Timestamps = append(retained, nowMs)
		if err := h.Put(ctx, stateKey, rec); err != nil {
			return fmt.Errorf("persist rate limit state: %w", err)
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// Reset drops all stored timestamps for a key.
func (l *Limiter) Reset(ctx context.Context, tenantID, key string) error {
	name := actor.Name(tenantID, "ratelimit:"+key)
	return l.runtime.Do(ctx, name, func(h actor.Handle) error {
		return h.Clear(ctx)
	})
}

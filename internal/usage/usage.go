// Package usage tracks per-tenant daily and monthly token counters in
// the key-value store and enforces configured budgets. Counter keys are
// derived from the UTC calendar day and month.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/storage/kv"
	"github.com/tjfontaine/tenantgate/internal/tenant"
)

// Snapshot is the accumulated usage for a tenant's current day/month.
type Snapshot struct {
	DailyKey    string
	MonthlyKey  string
	DailyUsed   int
	MonthlyUsed int
}

// Tracker reads and updates usage counters.
type Tracker struct {
	store  kv.Store
	logger *slog.Logger
}

// NewTracker creates a tracker.
func NewTracker(store kv.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}
}

func usageKeys(tenantID string, now time.Time) (daily, monthly string) {
	utc := now.UTC()
	daily = fmt.Sprintf("%s:token-usage:daily:%s", tenantID, utc.Format("2006-01-02"))
	monthly = fmt.Sprintf("%s:token-usage:monthly:%s", tenantID, utc.Format("2006-01"))
	return daily, monthly
}

func (t *Tracker) readCounter(ctx context.Context, key string) (int, error) {
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, nil
	}
	return value, nil
}

// Snapshot reads both counters for a tenant. The two reads are
// independent and issued concurrently.
func (t *Tracker) Snapshot(ctx context.Context, tenantID string, now time.Time) (*Snapshot, error) {
	dailyKey, monthlyKey := usageKeys(tenantID, now)

	var (
		wg         sync.WaitGroup
		daily      int
		monthly    int
		dailyErr   error
		monthlyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		daily, dailyErr = t.readCounter(ctx, dailyKey)
	}()
	go func() {
		defer wg.Done()
		monthly, monthlyErr = t.readCounter(ctx, monthlyKey)
	}()
	wg.Wait()

	if dailyErr != nil {
		return nil, fmt.Errorf("read daily usage: %w", dailyErr)
	}
	if monthlyErr != nil {
		return nil, fmt.Errorf("read monthly usage: %w", monthlyErr)
	}
	return &Snapshot{
		DailyKey:    dailyKey,
		MonthlyKey:  monthlyKey,
		DailyUsed:   daily,
		MonthlyUsed: monthly,
	}, nil
}

// CheckBudget admits or denies a request that would add estimatedTokens
// to the tenant's counters. A zero budget dimension is unlimited.
func (t *Tracker) CheckBudget(ctx context.Context, tn *tenant.Context, estimatedTokens int, now time.Time) (*Snapshot, error) {
	budget := tn.TokenBudget
	if budget.Daily == 0 && budget.Monthly == 0 {
		return nil, nil
	}

	snapshot, err := t.Snapshot(ctx, tn.TenantID, now)
	if err != nil {
		return nil, domain.ErrInternal("Usage lookup failed").WithCause(err)
	}
	if budget.Daily > 0 && snapshot.DailyUsed+estimatedTokens > budget.Daily {
		return snapshot, domain.ErrBudgetExceeded("Daily")
	}
	if budget.Monthly > 0 && snapshot.MonthlyUsed+estimatedTokens > budget.Monthly {
		return snapshot, domain.ErrBudgetExceeded("Monthly")
	}
	return snapshot, nil
}

// Add accumulates tokens onto both counters.
func (t *Tracker) Add(ctx context.Context, tenantID string, tokens int, now time.Time) error {
	if tokens <= 0 {
		return nil
	}

	snapshot, err := t.Snapshot(ctx, tenantID, now)
	if err != nil {
		return err
	}
	if err := t.store.Put(ctx, snapshot.DailyKey, strconv.Itoa(snapshot.DailyUsed+tokens), 0); err != nil {
		return fmt.Errorf("write daily usage: %w", err)
	}
	if err := t.store.Put(ctx, snapshot.MonthlyKey, strconv.Itoa(snapshot.MonthlyUsed+tokens), 0); err != nil {
		return fmt.Errorf("write monthly usage: %w", err)
	}
	return nil
}

// Recorder turns gateway usage metrics into counter updates. Recording
// is fire-and-forget: it runs off the request path and only logs on
// failure.
type Recorder struct {
	tracker *Tracker
	logger  *slog.Logger

	// wg lets tests wait for in-flight writes.
	wg sync.WaitGroup
}

// NewRecorder creates a recorder over a tracker.
func NewRecorder(tracker *Tracker, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{tracker: tracker, logger: logger}
}

// Record accumulates a successful invocation's tokens asynchronously.
// Error metrics are logged but never counted against the budget.
func (r *Recorder) Record(metrics domain.UsageMetrics) {
	if metrics.Status != domain.StatusSuccess {
		r.logger.Warn("model invocation error",
			"tenant", metrics.TenantID,
			"model", metrics.ModelID,
			"latency_ms", metrics.LatencyMs,
			"trace_id", metrics.TraceID,
		)
		return
	}

	total := metrics.Total()
	r.logger.Info("model invocation",
		"tenant", metrics.TenantID,
		"model", metrics.ModelID,
		"latency_ms", metrics.LatencyMs,
		"tokens", total,
		"streamed", metrics.Streamed,
		"trace_id", metrics.TraceID,
		"route", metrics.Route,
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.tracker.Add(ctx, metrics.TenantID, total, time.Now()); err != nil {
			r.logger.Warn("usage write failed", "tenant", metrics.TenantID, "error", err)
		}
	}()
}

// Wait blocks until all dispatched writes finish. Test helper.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Package session implements the per-tenant chat session log. One actor
// instance exists per (tenant, session id); messages are append-only and
// pruned by retention age and a hard message cap on every access.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/storage/actor"
)

const stateKey = "messages"

// Retention bounds a session log: messages older than Days are dropped
// and at most MaxMessages are kept, oldest first to go.
type Retention struct {
	Days        int
	MaxMessages int
}

// Log manages chat session state through the actor runtime.
type Log struct {
	runtime *actor.Runtime
}

// NewLog creates a session log over the given actor runtime.
func NewLog(runtime *actor.Runtime) *Log {
	return &Log{runtime: runtime}
}

func name(tenantID, sessionID string) string {
	return actor.Name(tenantID, "session:"+sessionID)
}

// prune drops messages past the retention cutoff, restores timestamp
// order, and trims to the message cap. Reports whether anything changed.
func prune(messages []domain.ChatMessage, now time.Time, retention Retention) ([]domain.ChatMessage, bool) {
	cutoff := now.Add(-time.Duration(retention.Days) * 24 * time.Hour).UnixMilli()

	kept := make([]domain.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Timestamp >= cutoff {
			kept = append(kept, msg)
		}
	}
	changed := len(kept) != len(messages)

	if !sort.SliceIsSorted(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp }) {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp })
		changed = true
	}

	if retention.MaxMessages > 0 && len(kept) > retention.MaxMessages {
		kept = kept[len(kept)-retention.MaxMessages:]
		changed = true
	}
	return kept, changed
}

// Append adds a message to the session, pruning before and after so a
// single append can never leave the log over its cap.
func (l *Log) Append(ctx context.Context, tenantID, sessionID string, msg domain.ChatMessage, retention Retention) error {
	if !domain.ValidRole(msg.Role) {
		return domain.ErrInvalidRequest(fmt.Sprintf("invalid message role %q", msg.Role))
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	return l.runtime.Do(ctx, name(tenantID, sessionID), func(h actor.Handle) error {
		var messages []domain.ChatMessage
		if _, err := h.Get(ctx, stateKey, &messages); err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		now := time.Now()
		messages, _ = prune(messages, now, retention)
		messages = append(messages, msg)
		messages, _ = prune(messages, now, retention)

		if err := h.Put(ctx, stateKey, messages); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		return nil
	})
}

// History returns the session's messages most recent first, truncated to
// limit (0 means the retention cap). If pruning changed the stored log,
// the pruned version is persisted before returning.
func (l *Log) History(ctx context.Context, tenantID, sessionID string, limit int, retention Retention) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = retention.MaxMessages
	}

	var out []domain.ChatMessage
	err := l.runtime.Do(ctx, name(tenantID, sessionID), func(h actor.Handle) error {
		var messages []domain.ChatMessage
		if _, err := h.Get(ctx, stateKey, &messages); err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		pruned, changed := prune(messages, time.Now(), retention)
		if changed {
			if err := h.Put(ctx, stateKey, pruned); err != nil {
				return fmt.Errorf("persist pruned session: %w", err)
			}
		}

		out = make([]domain.ChatMessage, 0, len(pruned))
		for i := len(pruned) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, pruned[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recent returns up to limit messages in chronological order, suitable
// for building a provider prompt.
func (l *Log) Recent(ctx context.Context, tenantID, sessionID string, limit int, retention Retention) ([]domain.ChatMessage, error) {
	newest, err := l.History(ctx, tenantID, sessionID, limit, retention)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, len(newest))
	for i, msg := range newest {
		out[len(newest)-1-i] = msg
	}
	return out, nil
}

// Clear removes all session state.
func (l *Log) Clear(ctx context.Context, tenantID, sessionID string) error {
	return l.runtime.Do(ctx, name(tenantID, sessionID), func(h actor.Handle) error {
		return h.Clear(ctx)
	})
}

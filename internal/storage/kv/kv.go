// Package kv defines the key-value contract used for usage counters and
// the search cache, with Redis and in-memory implementations.
package kv

import (
	"context"
	"time"
)

// Store is an eventually consistent key-value store. Get reports absence
// via the boolean rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

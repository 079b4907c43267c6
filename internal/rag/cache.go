package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/storage/kv"
)

// defaultCacheTTL bounds how long an assembled search response is served
// without re-running the pipeline.
const defaultCacheTTL = 86400 * time.Second

// SearchCache stores assembled search responses keyed by a hash of the
// rewritten query, namespaced per tenant. All operations are best-effort:
// a cache failure is logged and treated as a miss, never as a request
// failure.
type SearchCache struct {
	store  kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewSearchCache creates a cache. A zero ttl takes the default of one
// day.
func NewSearchCache(store kv.Store, ttl time.Duration, logger *slog.Logger) *SearchCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCache{store: store, ttl: ttl, logger: logger}
}

type cacheRecord struct {
	Response domain.SearchResponse `json:"response"`
	Meta     cacheMeta             `json:"meta"`
}

type cacheMeta struct {
	Timestamp int64 `json:"timestamp"`
	DocCount  int   `json:"docCount"`
}

func cacheKey(tenantID, query string) string {
	digest := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:search:%s", tenantID, hex.EncodeToString(digest[:]))
}

// Get returns the cached response for (tenant, query), or nil on a miss.
func (c *SearchCache) Get(ctx context.Context, tenantID, query string) *domain.SearchResponse {
	if c == nil || c.store == nil {
		return nil
	}

	stored, ok, err := c.store.Get(ctx, cacheKey(tenantID, query))
	if err != nil {
		c.logger.WarnContext(ctx, "search cache get failed", "tenant", tenantID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var record cacheRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		c.logger.WarnContext(ctx, "search cache entry corrupt", "tenant", tenantID, "error", err)
		return nil
	}
	return &record.Response
}

// Put stores the response under (tenant, query) with the cache TTL.
func (c *SearchCache) Put(ctx context.Context, tenantID, query string, response domain.SearchResponse) {
	if c == nil || c.store == nil {
		return
	}

	record := cacheRecord{
		Response: response,
		Meta: cacheMeta{
			Timestamp: time.Now().UnixMilli(),
			DocCount:  len(response.Sources),
		},
	}
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.WarnContext(ctx, "search cache encode failed", "tenant", tenantID, "error", err)
		return
	}
	if err := c.store.Put(ctx, cacheKey(tenantID, query), string(data), c.ttl); err != nil {
		c.logger.WarnContext(ctx, "search cache put failed", "tenant", tenantID, "error", err)
	}
}

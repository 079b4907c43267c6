// Package vectorstore defines the tenant-namespaced vector index contract
// with Qdrant and in-memory implementations. Every operation is scoped by
// a namespace; callers pass the tenant id so no cross-tenant reads are
// possible.
package vectorstore

import (
	"context"
)

// Metadata is the payload stored alongside a vector. Text holds a
// truncated snippet of the chunk, not the full document.
type Metadata struct {
	TenantID string `json:"tenantId"`
	DocID    string `json:"docId"`
	ChunkID  string `json:"chunkId"`
	Source   string `json:"source,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Field returns a metadata field by its payload key. Used for filter
// evaluation.
func (m Metadata) Field(key string) (string, bool) {
	switch key {
	case "tenantId":
		return m.TenantID, true
	case "docId":
		return m.DocID, true
	case "chunkId":
		return m.ChunkID, true
	case "source":
		return m.Source, true
	case "title":
		return m.Title, true
	case "url":
		return m.URL, true
	}
	return "", false
}

// Record is a vector plus metadata. Upserts are idempotent by ID.
type Record struct {
	ID       string    `json:"id"`
	Values   []float64 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a nearest-neighbor result.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// QueryOptions tune a similarity query.
type QueryOptions struct {
	TopK   int
	Filter map[string]string
}

// Store is a tenant-namespaced vector index.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float64, opts QueryOptions) ([]Match, error)
}

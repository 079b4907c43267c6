package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process cosine-similarity store used in tests and local
// development.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{namespaces: make(map[string]map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, namespace string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		m.namespaces[namespace] = ns
	}
	for _, record := range records {
		ns[record.ID] = record
	}
	return nil
}

func (m *Memory) Query(_ context.Context, namespace string, vector []float64, opts QueryOptions) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0)
	for _, record := range m.namespaces[namespace] {
		if !matchesFilter(record.Metadata, opts.Filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       record.ID,
			Score:    cosineSimilarity(vector, record.Values),
			Metadata: record.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(meta Metadata, filter map[string]string) bool {
	for key, want := range filter {
		got, ok := meta.Field(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

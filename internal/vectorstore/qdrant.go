package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Qdrant is a minimal REST client to a Qdrant collection. All points carry
// a namespace payload field; queries always filter on it, so tenants share
// one collection without sharing any data.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

var _ Store = (*Qdrant)(nil)

// QdrantConfig configures the client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewQdrant creates a Qdrant-backed store.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection if missing. Cosine distance.
func (q *Qdrant) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s", q.url, q.collection), body)
}

func (q *Qdrant) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, record := range records {
		points[i] = map[string]any{
			"id":     record.ID,
			"vector": record.Values,
			"payload": map[string]any{
				"namespace": namespace,
				"tenantId":  record.Metadata.TenantID,
				"docId":     record.Metadata.DocID,
				"chunkId":   record.Metadata.ChunkID,
				"source":    record.Metadata.Source,
				"title":     record.Metadata.Title,
				"url":       record.Metadata.URL,
				"text":      record.Metadata.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body)
}

func (q *Qdrant) Query(ctx context.Context, namespace string, vector []float64, opts QueryOptions) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	must := []map[string]any{
		{"key": "namespace", "match": map[string]any{"value": namespace}},
	}
	for key, value := range opts.Filter {
		must = append(must, map[string]any{
			"key": key, "match": map[string]any{"value": value},
		})
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		match := Match{Score: r.Score}
		match.ID = fmt.Sprint(r.ID)
		match.Metadata = payloadToMetadata(r.Payload)
		matches = append(matches, match)
	}
	return matches, nil
}

func payloadToMetadata(payload map[string]any) Metadata {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	return Metadata{
		TenantID: str("tenantId"),
		DocID:    str("docId"),
		ChunkID:  str("chunkId"),
		Source:   str("source"),
		Title:    str("title"),
		URL:      str("url"),
		Text:     str("text"),
	}
}

func (q *Qdrant) putJSON(ctx context.Context, url string, body any) error {
	return q.doJSON(ctx, http.MethodPut, url, body, nil)
}

func (q *Qdrant) postJSON(ctx context.Context, url string, body any, out any) error {
	return q.doJSON(ctx, http.MethodPost, url, body, out)
}

func (q *Qdrant) doJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal qdrant request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

package vectorstore

import (
	"context"
	"testing"
)

func record(id, docID string, values ...float64) Record {
	return Record{
		ID:     id,
		Values: values,
		Metadata: Metadata{
			TenantID: "acme",
			DocID:    docID,
			ChunkID:  "0",
			Text:     "snippet",
		},
	}
}

func TestMemory_QueryRanksBySimilarity(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	err := store.Upsert(ctx, "acme", []Record{
		record("doc-1:0", "doc-1", 1, 0),
		record("doc-2:0", "doc-2", 0, 1),
		record("doc-3:0", "doc-3", 0.9, 0.1),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, "acme", []float64{1, 0}, QueryOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query() returned %d matches, want 2", len(matches))
	}
	if matches[0].ID != "doc-1:0" {
		t.Errorf("best match = %s, want doc-1:0", matches[0].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not sorted by descending score")
	}
}

func TestMemory_NamespaceIsolation(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Upsert(ctx, "acme", []Record{record("doc-1:0", "doc-1", 1, 0)})

	matches, err := store.Query(ctx, "globex", []float64{1, 0}, QueryOptions{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("namespace leak: got %d matches from another tenant", len(matches))
	}
}

func TestMemory_UpsertIdempotentByID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Upsert(ctx, "acme", []Record{record("doc-1:0", "doc-1", 1, 0)})
	_ = store.Upsert(ctx, "acme", []Record{record("doc-1:0", "doc-1", 0, 1)})

	matches, _ := store.Query(ctx, "acme", []float64{0, 1}, QueryOptions{TopK: 10})
	if len(matches) != 1 {
		t.Fatalf("duplicate ids after re-upsert: %d records", len(matches))
	}
}

func TestMemory_Filter(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Upsert(ctx, "acme", []Record{
		record("doc-1:0", "doc-1", 1, 0),
		record("doc-2:0", "doc-2", 1, 0),
	})

	matches, err := store.Query(ctx, "acme", []float64{1, 0}, QueryOptions{
		Filter: map[string]string{"docId": "doc-2"},
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata.DocID != "doc-2" {
		t.Errorf("filter not applied: %+v", matches)
	}
}

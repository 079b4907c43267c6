package domain

// Source is a cited document chunk backing a generated answer.
type Source struct {
	ID      string  `json:"id"`
	DocID   string  `json:"docId"`
	ChunkID string  `json:"chunkId"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Source  string  `json:"source,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score,omitempty"`
}

// SearchResponse is the assembled result of a RAG search. It is the unit
// stored in the search cache, so it must round-trip through JSON unchanged.
type SearchResponse struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	FollowUps  []string `json:"followUps"`
}

// IngestResult summarizes a completed document ingest.
type IngestResult struct {
	DocID          string `json:"docId"`
	ChunkCount     int    `json:"chunkCount"`
	EmbeddingModel string `json:"embeddingModel"`
}

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/gateway"
	"github.com/tjfontaine/tenantgate/internal/provider"
	"github.com/tjfontaine/tenantgate/internal/tenant"
	"github.com/tjfontaine/tenantgate/internal/vectorstore"
)

const (
	defaultTopK    = 5
	snippetLength  = 512
	maxFollowUps   = 5
	followUpsAsked = "3 to 5"
)

// RerankHook reorders retrieved matches before prompt assembly. Hook
// failures are logged and the original order is kept.
type RerankHook func(ctx context.Context, query string, matches []vectorstore.Match) ([]vectorstore.Match, error)

// IngestRequest is one document to index.
type IngestRequest struct {
	DocID    string       `json:"docId"`
	Text     string       `json:"text"`
	Source   string       `json:"source,omitempty"`
	Title    string       `json:"title,omitempty"`
	URL      string       `json:"url,omitempty"`
	Chunking ChunkOptions `json:"chunking,omitempty"`
}

// SearchRequest is one retrieval-augmented query.
type SearchRequest struct {
	Query  string            `json:"query"`
	TopK   int               `json:"topK,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithRerankHook installs a rerank stage between retrieval and assembly.
func WithRerankHook(hook RerankHook) Option {
	return func(p *Pipeline) { p.rerank = hook }
}

// WithUsageFunc forwards model usage metrics emitted by pipeline calls.
func WithUsageFunc(fn gateway.UsageFunc) Option {
	return func(p *Pipeline) { p.onUsage = fn }
}

// WithPromptTemplate overrides the generation prompt's fixed lines.
func WithPromptTemplate(template PromptTemplate) Option {
	return func(p *Pipeline) { p.template = template }
}

// Pipeline composes chunking, embedding, retrieval, rewriting, the
// safety gate, and generation into ingest and search operations.
type Pipeline struct {
	gateway  *gateway.Gateway
	embedder provider.Provider
	vectors  vectorstore.Store
	cache    *SearchCache
	rerank   RerankHook
	onUsage  gateway.UsageFunc
	template PromptTemplate
	logger   *slog.Logger
}

// New creates a pipeline. cache may be nil to disable search caching.
func New(gw *gateway.Gateway, embedder provider.Provider, vectors vectorstore.Store, cache *SearchCache, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		gateway:  gw,
		embedder: embedder,
		vectors:  vectors,
		cache:    cache,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest chunks and embeds a document, then upserts one vector record
// per chunk into the tenant's namespace.
func (p *Pipeline) Ingest(ctx context.Context, tn *tenant.Context, req IngestRequest) (*domain.IngestResult, error) {
	chunks := Chunk(req.Text, req.Chunking)
	if len(chunks) == 0 {
		return nil, domain.ErrNoContent()
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.Embed(ctx, tn.EmbeddingModel, texts)
	if err != nil {
		return nil, domain.ErrProviderUnavailable().WithCause(err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.ErrProviderUnavailable().WithCause(
			fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:     fmt.Sprintf("%s:%d", req.DocID, chunk.Index),
			Values: vectors[i],
			Metadata: vectorstore.Metadata{
				TenantID: tn.TenantID,
				DocID:    req.DocID,
				ChunkID:  strconv.Itoa(chunk.Index),
				Source:   req.Source,
				Title:    req.Title,
				URL:      req.URL,
				Text:     snippet(chunk.Text),
			},
		}
	}

	if err := p.vectors.Upsert(ctx, tn.TenantID, records); err != nil {
		return nil, domain.ErrProviderUnavailable().WithCause(err)
	}

	p.logger.InfoContext(ctx, "document ingested",
		"tenant", tn.TenantID,
		"doc", req.DocID,
		"chunks", len(chunks),
	)
	return &domain.IngestResult{
		DocID:          req.DocID,
		ChunkCount:     len(chunks),
		EmbeddingModel: tn.EmbeddingModel,
	}, nil
}

// Search answers a query against the tenant's indexed documents:
// safety gate, query rewrite, cache lookup, retrieval, generation,
// follow-up suggestions, and a best-effort cache write.
func (p *Pipeline) Search(ctx context.Context, tn *tenant.Context, req SearchRequest, traceID string) (*domain.SearchResponse, error) {
	// Blocked questions never reach a model, not even for rewriting.
	if safety := CheckSafety(req.Query); !safety.Allowed {
		p.logger.InfoContext(ctx, "search query blocked",
			"tenant", tn.TenantID,
			"reason", safety.Reason,
		)
		return &domain.SearchResponse{
			Answer:     refusalAnswer,
			Sources:    []domain.Source{},
			Confidence: 0,
			FollowUps:  []string{},
		}, nil
	}

	rewrite := p.rewriteQuery(ctx, tn.TenantID, tn.GatewayID, tn.ChatModel, tn.FallbackModel, req.Query, traceID)

	if cached := p.cache.Get(ctx, tn.TenantID, rewrite.Query); cached != nil {
		p.logger.DebugContext(ctx, "search cache hit", "tenant", tn.TenantID, "intent", string(rewrite.Intent))
		return cached, nil
	}

	matches, err := p.retrieve(ctx, tn, rewrite.Query, req)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.Source, len(matches))
	for i, match := range matches {
		sources[i] = domain.Source{
			ID:      match.ID,
			DocID:   match.Metadata.DocID,
			ChunkID: match.Metadata.ChunkID,
			Title:   match.Metadata.Title,
			URL:     match.Metadata.URL,
			Source:  match.Metadata.Source,
			Text:    match.Metadata.Text,
			Score:   match.Score,
		}
	}

	prompt := AssemblePrompt(rewrite.Query, sources, p.template)
	answer, err := p.gateway.Invoke(ctx, tn.TenantID, tn.GatewayID, tn.ChatModel,
		[]domain.Message{{Role: domain.RoleUser, Content: prompt}},
		gateway.Options{
			FallbackModelID: tn.FallbackModel,
			OnUsage:         p.onUsage,
			TraceID:         traceID,
			Route:           "/search",
		})
	if err != nil {
		return nil, domain.ErrProviderUnavailable().WithCause(err)
	}

	response := domain.SearchResponse{
		Answer:     answer.Text,
		Sources:    sources,
		Confidence: confidenceFromMatches(matches),
		FollowUps:  p.generateFollowUps(ctx, tn, rewrite.Query, answer.Text, traceID),
	}

	p.cache.Put(ctx, tn.TenantID, rewrite.Query, response)
	return &response, nil
}

func (p *Pipeline) retrieve(ctx context.Context, tn *tenant.Context, query string, req SearchRequest) ([]vectorstore.Match, error) {
	vectors, err := p.embedder.Embed(ctx, tn.EmbeddingModel, []string{query})
	if err != nil {
		return nil, domain.ErrProviderUnavailable().WithCause(err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	matches, err := p.vectors.Query(ctx, tn.TenantID, vectors[0], vectorstore.QueryOptions{
		TopK:   topK,
		Filter: req.Filter,
	})
	if err != nil {
		return nil, domain.ErrProviderUnavailable().WithCause(err)
	}

	if p.rerank != nil && len(matches) > 0 {
		reranked, err := p.rerank(ctx, query, matches)
		if err != nil {
			p.logger.WarnContext(ctx, "rerank hook failed, keeping original order",
				"tenant", tn.TenantID, "error", err)
		} else {
			matches = reranked
		}
	}
	return matches, nil
}

// generateFollowUps asks the chat model for suggested next questions.
// Failures and malformed output yield an empty list, never an error.
func (p *Pipeline) generateFollowUps(ctx context.Context, tn *tenant.Context, query, answer, traceID string) []string {
	result, err := p.gateway.Invoke(ctx, tn.TenantID, tn.GatewayID, tn.ChatModel,
		[]domain.Message{
			{
				Role:    domain.RoleSystem,
				Content: "You suggest follow-up search questions. Return only a JSON array of strings.",
			},
			{
				Role: domain.RoleUser,
				Content: fmt.Sprintf("Given the question %q and the answer %q, suggest %s follow-up questions as a JSON array of strings with no extra text.",
					query, answer, followUpsAsked),
			},
		},
		gateway.Options{
			FallbackModelID: tn.FallbackModel,
			OnUsage:         p.onUsage,
			TraceID:         traceID,
			Route:           "/search",
		})
	if err != nil {
		p.logger.DebugContext(ctx, "follow-up generation failed", "tenant", tn.TenantID, "error", err)
		return []string{}
	}

	followUps := extractJSONStrings(result.Text)
	if len(followUps) > maxFollowUps {
		followUps = followUps[:maxFollowUps]
	}
	return followUps
}

// extractJSONStrings parses a JSON array of strings out of model output,
// tolerating prose around it. Anything malformed yields an empty list.
func extractJSONStrings(text string) []string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end <= start {
		return []string{}
	}

	var raw []any
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return []string{}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// confidenceFromMatches is the mean of the top 3 match scores, clamped
// to [0, 1]. No matches means zero confidence.
func confidenceFromMatches(matches []vectorstore.Match) float64 {
	if len(matches) == 0 {
		return 0
	}

	scores := make([]float64, len(matches))
	for i, match := range matches {
		scores[i] = match.Score
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	if len(scores) > 3 {
		scores = scores[:3]
	}

	var sum float64
	for _, score := range scores {
		sum += score
	}
	mean := sum / float64(len(scores))
	if mean < 0 {
		return 0
	}
	if mean > 1 {
		return 1
	}
	return mean
}

func snippet(text string) string {
	if len(text) > snippetLength {
		return text[:snippetLength]
	}
	return text
}

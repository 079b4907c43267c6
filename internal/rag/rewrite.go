package rag

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/gateway"
)

// Intent classifies what kind of search query the user issued.
type Intent string

const (
	IntentQuestion      Intent = "question"
	IntentStatement     Intent = "statement"
	IntentCommand       Intent = "command"
	IntentClarification Intent = "clarification"
)

func normalizeIntent(value string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(value))) {
	case IntentStatement:
		return IntentStatement
	case IntentCommand:
		return IntentCommand
	case IntentClarification:
		return IntentClarification
	default:
		return IntentQuestion
	}
}

// Rewrite is the outcome of query rewriting. On any failure the original
// query comes back verbatim with intent "question".
type Rewrite struct {
	Intent Intent
	Query  string
}

// rewriteAttempts bounds how many model calls a rewrite may make before
// falling back to the original query.
const rewriteAttempts = 2

// rewriteQuery asks the chat model to classify intent and propose a
// clearer query. Rewriting is recoverable: it never fails the search.
func (p *Pipeline) rewriteQuery(ctx context.Context, tenantID, gatewayID, modelID, fallbackModelID, query, traceID string) Rewrite {
	fallback := Rewrite{Intent: IntentQuestion, Query: query}
	if modelID == "" {
		return fallback
	}

	messages := []domain.Message{
		{
			Role:    domain.RoleSystem,
			Content: "You analyze search queries. Return only JSON with keys intent and rewritten.",
		},
		{
			Role: domain.RoleUser,
			Content: "Classify the intent (question|statement|command|clarification) and rewrite the query for clarity.\n" +
				"Query: \"" + query + "\"\n" +
				`Return JSON like {"intent":"question","rewritten":"..."} with no extra text.`,
		},
	}

	var lastErr error
	for attempt := 0; attempt < rewriteAttempts; attempt++ {
		result, err := p.gateway.Invoke(ctx, tenantID, gatewayID, modelID, messages, gateway.Options{
			FallbackModelID: fallbackModelID,
			OnUsage:         p.onUsage,
			TraceID:         traceID,
			Route:           "/search",
		})
		if err != nil {
			lastErr = err
			continue
		}

		parsed := extractJSONObject(result.Text)
		if parsed == nil {
			return fallback
		}

		rewrite := fallback
		if intent, ok := parsed["intent"].(string); ok {
			rewrite.Intent = normalizeIntent(intent)
		}
		if rewritten, ok := parsed["rewritten"].(string); ok && strings.TrimSpace(rewritten) != "" {
			rewrite.Query = strings.TrimSpace(rewritten)
		}
		return rewrite
	}

	p.logger.DebugContext(ctx, "query rewrite failed, using original query",
		"tenant", tenantID,
		"error", lastErr,
	)
	return fallback
}

// extractJSONObject pulls the first JSON object out of model output,
// tolerating prose around it.
func extractJSONObject(text string) map[string]any {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		return nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &parsed); err != nil {
		return nil
	}
	return parsed
}

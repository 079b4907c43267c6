package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/gateway"
	"github.com/tjfontaine/tenantgate/internal/tenant"
)

// sseWriter emits server-sent events, swallowing write failures so a
// disconnected client never aborts the handler.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

// event writes one SSE frame. A non-empty name becomes the event: line.
func (s *sseWriter) event(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	if name != "" {
		_, _ = fmt.Fprintf(s.w, "event: %s\n", name)
	}
	_, _ = fmt.Fprintf(s.w, "data: %s\n\n", payload)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

type doneUsage struct {
	ModelID     string `json:"modelId"`
	TokensIn    int    `json:"tokensIn,omitempty"`
	TokensOut   int    `json:"tokensOut,omitempty"`
	TotalTokens int    `json:"totalTokens,omitempty"`
	LatencyMs   int64  `json:"latencyMs"`
}

// streamChat runs a streaming invocation and forwards each decoded token
// as an SSE event. The terminal done event is always sent: on success,
// on provider error, and on client cancellation.
func (s *Server) streamChat(
	w http.ResponseWriter,
	r *http.Request,
	tn *tenant.Context,
	sessionID, modelID string,
	messages []domain.Message,
	estimatedTokensIn int,
	opts gateway.Options,
	lastUsage **domain.UsageMetrics,
) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("x-tenant-id", tn.TenantID)
	h.Set("x-model-id", modelID)
	h.Set("x-tokens-in", strconv.Itoa(estimatedTokensIn))
	w.WriteHeader(http.StatusOK)

	sse := newSSEWriter(w)
	assistantContent := ""

	defer func() {
		// Persist whatever the client saw, even on a torn-down stream.
		if assistantContent != "" {
			tokenCount := s.counter.CountText(modelID, assistantContent)
			if usage := *lastUsage; usage != nil && usage.TokensOut > 0 {
				tokenCount = usage.TokensOut
			}
			appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.sessions.Append(appendCtx, tn.TenantID, sessionID, domain.ChatMessage{
				Role:       domain.RoleAssistant,
				Content:    assistantContent,
				Timestamp:  time.Now().UnixMilli(),
				TokenCount: tokenCount,
			}, retentionFor(tn)); err != nil {
				s.logger.Warn("assistant append failed", "tenant", tn.TenantID, "error", err)
			}
		}

		done := map[string]any{"done": true}
		if usage := *lastUsage; usage != nil {
			done["usage"] = doneUsage{
				ModelID:     usage.ModelID,
				TokensIn:    usage.TokensIn,
				TokensOut:   usage.TokensOut,
				TotalTokens: usage.Total(),
				LatencyMs:   usage.LatencyMs,
			}
		}
		sse.event("done", done)
	}()

	result, err := s.gateway.Invoke(ctx, tn.TenantID, tn.GatewayID, modelID, messages, opts)
	if err != nil {
		AddError(ctx, err)
		sse.event("error", map[string]any{
			"code":    "ai_error",
			"message": "AI provider unavailable",
			"traceId": traceID,
		})
		return
	}
	defer result.Stream.Close()

	for {
		if ctx.Err() != nil {
			// Client went away; Close drives the usage accounting.
			return
		}
		token, ok, err := result.Stream.Next()
		if err != nil {
			AddError(ctx, err)
			return
		}
		if !ok {
			return
		}
		assistantContent += token
		sse.event("", map[string]any{
			"sessionId": sessionID,
			"role":      "assistant",
			"content":   token,
			"tenantId":  tn.TenantID,
			"traceId":   traceID,
		})
	}
}

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/gateway"
	"github.com/tjfontaine/tenantgate/internal/ratelimit"
	"github.com/tjfontaine/tenantgate/internal/session"
	"github.com/tjfontaine/tenantgate/internal/tenant"
)

type chatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	ModelID   string `json:"modelId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Stream    *bool  `json:"stream,omitempty"`
}

type chatResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
	Stream    bool   `json:"stream"`
	Message   string `json:"message"`
}

func retentionFor(tn *tenant.Context) session.Retention {
	return session.Retention{
		Days:        tn.SessionRetentionDays,
		MaxMessages: tn.MaxMessagesPerSession,
	}
}

// checkRateLimit runs the admission check and writes the rate-limit
// headers. Limiter failures deny the request.
func (s *Server) checkRateLimit(w http.ResponseWriter, r *http.Request, tn *tenant.Context, limiterKey string) bool {
	policy := ratelimit.Policy{
		Limit:          tn.RateLimit.PerMinute,
		WindowSec:      tn.RateLimit.WindowSec,
		Burst:          tn.RateLimit.Burst,
		BurstWindowSec: tn.RateLimit.BurstWindowSec,
	}

	decision, err := s.limiter.Check(r.Context(), tn.TenantID, limiterKey, time.Now(), policy)
	if err != nil {
		// Fail closed: an unreachable limiter denies.
		writeError(w, r, domain.ErrRateLimited().WithCause(err))
		return false
	}

	h := w.Header()
	h.Set("x-ratelimit-limit", strconv.Itoa(decision.Limit))
	h.Set("x-ratelimit-remaining", strconv.Itoa(decision.Remaining))
	h.Set("x-ratelimit-reset", strconv.FormatInt(decision.ResetAt, 10))

	if !decision.Allowed {
		writeError(w, r, domain.ErrRateLimited())
		return false
	}
	return true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Message == "" {
		writeError(w, r, domain.ErrInvalidRequest("Message is required"))
		return
	}
	if len(req.Message) > s.maxMessageLength {
		writeError(w, r, domain.ErrInvalidRequest("Message too long"))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	AddLogField(ctx, "session", sessionID)

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = tn.ChatModel
	}
	fallbackModelID := tn.FallbackModel
	if !tn.ModelAllowed(modelID) {
		writeError(w, r, domain.ErrModelNotAllowed())
		return
	}
	if fallbackModelID != "" && !tn.ModelAllowed(fallbackModelID) {
		fallbackModelID = ""
	}

	limiterKey := req.UserID
	if limiterKey == "" {
		limiterKey = r.Header.Get("x-user-id")
	}
	if limiterKey == "" {
		limiterKey = "anonymous"
	}
	if !s.checkRateLimit(w, r, tn, limiterKey) {
		return
	}

	retention := retentionFor(tn)
	history, err := s.sessions.Recent(ctx, tn.TenantID, sessionID, tn.MaxMessagesPerSession, retention)
	if err != nil {
		writeError(w, r, domain.ErrInternal("Session unavailable").WithCause(err))
		return
	}

	userTokens := s.counter.CountText(modelID, req.Message)
	if err := s.sessions.Append(ctx, tn.TenantID, sessionID, domain.ChatMessage{
		Role:       domain.RoleUser,
		Content:    req.Message,
		Timestamp:  time.Now().UnixMilli(),
		TokenCount: userTokens,
	}, retention); err != nil {
		writeError(w, r, domain.ErrInternal("Session unavailable").WithCause(err))
		return
	}

	messages := make([]domain.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, domain.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Message})

	estimatedTokensIn := 0
	for _, msg := range messages {
		estimatedTokensIn += s.counter.CountText(modelID, msg.Content)
	}
	if _, err := s.usage.CheckBudget(ctx, tn, estimatedTokensIn, time.Now()); err != nil {
		writeError(w, r, err)
		return
	}

	// Capture the winning attempt's usage for response headers while
	// still feeding every attempt to the recorder.
	var lastUsage *domain.UsageMetrics
	onUsage := func(m domain.UsageMetrics) {
		if m.Status == domain.StatusSuccess {
			captured := m
			lastUsage = &captured
		}
		s.recorder.Record(m)
	}

	opts := gateway.Options{
		Stream:          stream,
		FallbackModelID: fallbackModelID,
		OnUsage:         onUsage,
		TraceID:         traceID,
		Route:           "/chat",
	}

	if stream {
		s.streamChat(w, r, tn, sessionID, modelID, messages, estimatedTokensIn, opts, &lastUsage)
		return
	}

	result, err := s.gateway.Invoke(ctx, tn.TenantID, tn.GatewayID, modelID, messages, opts)
	if err != nil {
		writeError(w, r, domain.ErrProviderUnavailable().WithCause(err))
		return
	}

	assistantTokens := result.TokensOut
	if lastUsage != nil && lastUsage.TokensOut > 0 {
		assistantTokens = lastUsage.TokensOut
	}
	if err := s.sessions.Append(ctx, tn.TenantID, sessionID, domain.ChatMessage{
		Role:       domain.RoleAssistant,
		Content:    result.Text,
		Timestamp:  time.Now().UnixMilli(),
		TokenCount: assistantTokens,
	}, retention); err != nil {
		s.logger.WarnContext(ctx, "assistant append failed", "tenant", tn.TenantID, "error", err)
	}

	h := w.Header()
	h.Set("x-model-id", result.ModelID)
	if lastUsage != nil {
		h.Set("x-tokens-in", strconv.Itoa(lastUsage.TokensIn))
		h.Set("x-tokens-out", strconv.Itoa(lastUsage.TokensOut))
		h.Set("x-tokens-total", strconv.Itoa(lastUsage.Total()))
		h.Set("x-ai-latency-ms", strconv.FormatInt(lastUsage.LatencyMs, 10))
	}

	writeOK(w, r, chatResponse{
		Status:    "accepted",
		SessionID: sessionID,
		Stream:    false,
		Message:   result.Text,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, domain.ErrInvalidRequest("Session id is required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, domain.ErrInvalidRequest(fmt.Sprintf("Invalid limit %q", raw)))
			return
		}
		limit = parsed
	}

	messages, err := s.sessions.History(r.Context(), tn.TenantID, sessionID, limit, retentionFor(tn))
	if err != nil {
		writeError(w, r, domain.ErrInternal("Session unavailable").WithCause(err))
		return
	}
	writeOK(w, r, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, domain.ErrInvalidRequest("Session id is required"))
		return
	}

	if err := s.sessions.Clear(r.Context(), tn.TenantID, sessionID); err != nil {
		writeError(w, r, domain.ErrInternal("Session unavailable").WithCause(err))
		return
	}
	writeOK(w, r, map[string]any{
		"sessionId": sessionID,
		"cleared":   true,
	})
}

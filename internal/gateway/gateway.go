// Package gateway is the model invocation layer: candidate selection with
// fallback, per-attempt usage metric emission, and normalization of raw
// provider token streams into plain text deltas.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/provider"
	"github.com/tjfontaine/tenantgate/internal/tokens"
)

// UsageFunc receives one metric per invocation attempt, including failed
// attempts before failover. Implementations must not block.
type UsageFunc func(metrics domain.UsageMetrics)

// Options configure one invocation.
type Options struct {
	Stream          bool
	FallbackModelID string
	OnUsage         UsageFunc
	TraceID         string
	Route           string
}

// Result is the outcome of a successful invocation. Exactly one of Text
// or Stream is populated, matching Options.Stream.
type Result struct {
	ModelID   string
	Text      string
	Stream    *TokenStream
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Gateway invokes models through a provider with failover.
type Gateway struct {
	provider provider.Provider
	counter  *tokens.Counter
	logger   *slog.Logger
}

// New creates a gateway.
func New(p provider.Provider, counter *tokens.Counter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, counter: counter, logger: logger}
}

// candidates returns the models to try in order. The fallback is only
// included when it differs from the primary.
func candidates(modelID, fallbackModelID string) []string {
	if fallbackModelID != "" && fallbackModelID != modelID {
		return []string{modelID, fallbackModelID}
	}
	return []string{modelID}
}

// Invoke runs the chat completion against each candidate model in order,
// emitting a usage metric per attempt, and returns the first success. If
// every candidate fails the last error is returned.
func (g *Gateway) Invoke(ctx context.Context, tenantID, gatewayID, modelID string, messages []domain.Message, opts Options) (*Result, error) {
	tokensIn := g.promptTokens(modelID, messages)

	var lastErr error
	for _, candidate := range candidates(modelID, opts.FallbackModelID) {
		start := time.Now()

		var (
			result *Result
			err    error
		)
		if opts.Stream {
			result, err = g.invokeStream(ctx, tenantID, gatewayID, candidate, messages, tokensIn, start, opts)
		} else {
			result, err = g.invokeBuffered(ctx, candidate, messages, tokensIn, start)
		}

		if err != nil {
			lastErr = err
			g.logger.WarnContext(ctx, "model invocation failed",
				"tenant", tenantID,
				"model", candidate,
				"error", err,
			)
			g.emit(opts, domain.UsageMetrics{
				TenantID:  tenantID,
				GatewayID: gatewayID,
				ModelID:   candidate,
				LatencyMs: time.Since(start).Milliseconds(),
				TokensIn:  tokensIn,
				Streamed:  opts.Stream,
				Status:    domain.StatusError,
				TraceID:   opts.TraceID,
				Route:     opts.Route,
			})
			continue
		}

		if !opts.Stream {
			g.emit(opts, domain.UsageMetrics{
				TenantID:    tenantID,
				GatewayID:   gatewayID,
				ModelID:     candidate,
				LatencyMs:   result.LatencyMs,
				TokensIn:    result.TokensIn,
				TokensOut:   result.TokensOut,
				TotalTokens: result.TokensIn + result.TokensOut,
				Streamed:    false,
				Status:      domain.StatusSuccess,
				TraceID:     opts.TraceID,
				Route:       opts.Route,
			})
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate models for %s", modelID)
	}
	return nil, lastErr
}

func (g *Gateway) invokeBuffered(ctx context.Context, modelID string, messages []domain.Message, tokensIn int, start time.Time) (*Result, error) {
	chat, err := g.provider.Chat(ctx, modelID, messages, provider.ChatOptions{})
	if err != nil {
		return nil, err
	}

	result := &Result{
		ModelID:   modelID,
		Text:      chat.Text,
		TokensIn:  tokensIn,
		TokensOut: g.completionTokens(modelID, chat.Text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	// Provider-reported counts win over local estimates.
	if chat.Usage != nil {
		if chat.Usage.PromptTokens > 0 {
			result.TokensIn = chat.Usage.PromptTokens
		}
		if chat.Usage.CompletionTokens > 0 {
			result.TokensOut = chat.Usage.CompletionTokens
		}
	}
	return result, nil
}

func (g *Gateway) invokeStream(ctx context.Context, tenantID, gatewayID, modelID string, messages []domain.Message, tokensIn int, start time.Time, opts Options) (*Result, error) {
	body, err := g.provider.ChatStream(ctx, modelID, messages, provider.ChatOptions{})
	if err != nil {
		return nil, err
	}

	// The stream emits the success metric itself: exactly once, on
	// natural completion or on consumer cancellation, whichever happens.
	stream := newTokenStream(body, func(chars int, _ bool) {
		tokensOut := estimateChars(chars)
		g.emit(opts, domain.UsageMetrics{
			TenantID:    tenantID,
			GatewayID:   gatewayID,
			ModelID:     modelID,
			LatencyMs:   time.Since(start).Milliseconds(),
			TokensIn:    tokensIn,
			TokensOut:   tokensOut,
			TotalTokens: tokensIn + tokensOut,
			Streamed:    true,
			Status:      domain.StatusSuccess,
			TraceID:     opts.TraceID,
			Route:       opts.Route,
		})
	})

	return &Result{
		ModelID:   modelID,
		Stream:    stream,
		TokensIn:  tokensIn,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (g *Gateway) emit(opts Options, metrics domain.UsageMetrics) {
	if opts.OnUsage != nil {
		opts.OnUsage(metrics)
	}
}

func (g *Gateway) promptTokens(modelID string, messages []domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	if g.counter != nil {
		n := 0
		for _, msg := range messages {
			n += g.counter.CountText(modelID, msg.Content)
		}
		if n > 0 {
			return n
		}
	}
	return estimateChars(total)
}

func (g *Gateway) completionTokens(modelID, text string) int {
	if g.counter != nil {
		if n := g.counter.CountText(modelID, text); n > 0 {
			return n
		}
	}
	return estimateChars(len(text))
}

// estimateChars is the chars/4 floor-of-one estimate used when no
// tokenizer count is available.
func estimateChars(chars int) int {
	if chars <= 0 {
		return 1
	}
	n := (chars + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

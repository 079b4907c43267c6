// Package provider defines the model provider contract and an
// OpenAI-compatible HTTP implementation. The streaming call hands back
// the raw line-oriented body; decoding into token deltas is the
// invocation layer's job.
package provider

import (
	"context"
	"io"

	"github.com/tjfontaine/tenantgate/internal/domain"
)

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is a buffered (non-streaming) completion.
type ChatResult struct {
	Text  string
	Usage *Usage
}

// ChatOptions tune a completion request.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// Provider is a model backend capable of chat completion and embedding.
type Provider interface {
	// Chat runs a buffered completion and returns the extracted text.
	Chat(ctx context.Context, modelID string, messages []domain.Message, opts ChatOptions) (*ChatResult, error)
	// ChatStream starts a streaming completion and returns the raw
	// response body. The caller owns the body and must close it.
	ChatStream(ctx context.Context, modelID string, messages []domain.Message, opts ChatOptions) (io.ReadCloser, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, modelID string, texts []string) ([][]float64, error)
}

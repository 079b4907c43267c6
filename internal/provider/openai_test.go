package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/tenantgate/internal/domain"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "gpt-4o" {
			t.Errorf("model = %v", req["model"])
		}
		if _, streaming := req["stream"]; streaming {
			t.Error("buffered chat set stream")
		}

		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "hi there"}}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	result, err := client.Chat(context.Background(), "gpt-4o",
		[]domain.Message{{Role: domain.RoleUser, Content: "hello"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Text != "hi there" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Usage == nil || result.Usage.PromptTokens != 9 || result.Usage.CompletionTokens != 3 {
		t.Errorf("Usage = %+v", result.Usage)
	}
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit reached"}}`))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := client.Chat(context.Background(), "gpt-4o",
		[]domain.Message{{Role: domain.RoleUser, Content: "hello"}}, ChatOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limit reached") {
		t.Errorf("err = %v", err)
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	if _, err := client.Chat(context.Background(), "gpt-4o", nil, ChatOptions{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["stream"] != true {
			t.Error("stream flag not set")
		}
		_, _ = w.Write([]byte("data: {\"delta\":\"x\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	body, err := client.ChatStream(context.Background(), "gpt-4o",
		[]domain.Message{{Role: domain.RoleUser, Content: "hello"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.Contains(string(raw), "[DONE]") {
		t.Errorf("stream body = %q", raw)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		// Out-of-order indices must land in input order.
		_, _ = w.Write([]byte(`{
			"data": [
				{"index": 1, "embedding": [0.2]},
				{"index": 0, "embedding": [0.1]}
			]
		}`))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	vectors, err := client.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [0.1]}]}`))
	}))
	defer srv.Close()

	client := NewOpenAI("test-key", WithBaseURL(srv.URL))
	if _, err := client.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for vector count mismatch")
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	client := NewOpenAI("test-key")
	vectors, err := client.Embed(context.Background(), "text-embedding-3-small", nil)
	if err != nil || vectors != nil {
		t.Errorf("Embed(nil) = %v, %v", vectors, err)
	}
}

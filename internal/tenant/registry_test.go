package tenant

import (
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/tenantgate/internal/config"
)

func testConfigs() []config.TenantConfig {
	return []config.TenantConfig{
		{
			ID:             "acme",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			RateLimit:      config.RateLimitConfig{PerMinute: 60, WindowSec: 60},
			AllowedHosts:   []string{"acme.example.com"},
			APIKeys:        []string{"key-acme"},
			AllowedModels:  []string{"gpt-4o-mini"},
			FeatureFlags:   map[string]bool{"modelAllowList": true},
		},
		{
			ID:             "globex",
			ChatModel:      "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			RateLimit:      config.RateLimitConfig{PerMinute: 10, WindowSec: 60},
			APIKeys:        []string{"key-globex"},
		},
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry(testConfigs())

	if registry.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", registry.Len())
	}

	tn, ok := registry.Get("acme")
	if !ok {
		t.Fatal("Get(acme) returned false")
	}
	if tn.GatewayID != "acme" {
		t.Errorf("GatewayID = %q, want acme (defaulted from id)", tn.GatewayID)
	}

	if _, ok := registry.Get("missing"); ok {
		t.Error("Get(missing) returned true")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry(testConfigs())

	t.Run("header wins", func(t *testing.T) {
		req := httptest.NewRequest("POST", "http://acme.example.com/chat", nil)
		req.Header.Set("x-tenant-id", "globex")
		tn, ok := registry.Resolve(req)
		if !ok || tn.TenantID != "globex" {
			t.Fatalf("Resolve() = %v, %v; want globex", tn, ok)
		}
	})

	t.Run("host", func(t *testing.T) {
		req := httptest.NewRequest("POST", "http://acme.example.com:8080/chat", nil)
		tn, ok := registry.Resolve(req)
		if !ok || tn.TenantID != "acme" {
			t.Fatalf("Resolve() = %v, %v; want acme", tn, ok)
		}
	})

	t.Run("api key", func(t *testing.T) {
		req := httptest.NewRequest("POST", "http://other.example.com/chat", nil)
		req.Header.Set("x-api-key", "key-globex")
		tn, ok := registry.Resolve(req)
		if !ok || tn.TenantID != "globex" {
			t.Fatalf("Resolve() = %v, %v; want globex", tn, ok)
		}
	})

	t.Run("no match", func(t *testing.T) {
		req := httptest.NewRequest("POST", "http://other.example.com/chat", nil)
		if _, ok := registry.Resolve(req); ok {
			t.Error("Resolve() matched an unknown tenant")
		}
	})
}

func TestContext_ModelAllowed(t *testing.T) {
	registry := NewRegistry(testConfigs())

	acme, _ := registry.Get("acme")
	if !acme.ModelAllowed("gpt-4o-mini") {
		t.Error("allow-listed model rejected")
	}
	if acme.ModelAllowed("gpt-4o") {
		t.Error("model outside allow-list accepted")
	}

	// Tenant without the flag accepts anything.
	globex, _ := registry.Get("globex")
	if !globex.ModelAllowed("anything") {
		t.Error("allow-list enforced without the modelAllowList flag")
	}
}

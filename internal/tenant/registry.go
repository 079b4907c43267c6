package tenant

import (
	"net"
	"net/http"

	"github.com/tjfontaine/tenantgate/internal/config"
)

// Registry indexes tenants by id, host, and API key. It is built once at
// process start and treated as immutable thereafter.
type Registry struct {
	byID   map[string]*Context
	byHost map[string]string
	byKey  map[string]string
}

// NewRegistry builds a registry from loaded tenant configs.
func NewRegistry(configs []config.TenantConfig) *Registry {
	r := &Registry{
		byID:   make(map[string]*Context, len(configs)),
		byHost: make(map[string]string),
		byKey:  make(map[string]string),
	}

	for _, cfg := range configs {
		t := fromConfig(cfg)
		r.byID[t.TenantID] = t
		for _, host := range t.AllowedHosts {
			r.byHost[host] = t.TenantID
		}
		for _, key := range t.APIKeys {
			r.byKey[key] = t.TenantID
		}
	}

	return r
}

func fromConfig(cfg config.TenantConfig) *Context {
	gatewayID := cfg.GatewayID
	if gatewayID == "" {
		gatewayID = cfg.ID
	}
	flags := make(map[string]bool, len(cfg.FeatureFlags))
	for name, enabled := range cfg.FeatureFlags {
		flags[name] = enabled
	}
	return &Context{
		TenantID:              cfg.ID,
		GatewayID:             gatewayID,
		ChatModel:             cfg.ChatModel,
		EmbeddingModel:        cfg.EmbeddingModel,
		FallbackModel:         cfg.FallbackModel,
		RateLimit: RateLimit{
			PerMinute:      cfg.RateLimit.PerMinute,
			Burst:          cfg.RateLimit.Burst,
			WindowSec:      cfg.RateLimit.WindowSec,
			BurstWindowSec: cfg.RateLimit.BurstWindowSec,
		},
		TokenBudget: TokenBudget{
			Daily:   cfg.TokenBudget.Daily,
			Monthly: cfg.TokenBudget.Monthly,
		},
		SessionRetentionDays:  cfg.SessionRetentionDays,
		MaxMessagesPerSession: cfg.MaxMessagesPerSession,
		AllowedModels:         append([]string(nil), cfg.AllowedModels...),
		AllowedHosts:          append([]string(nil), cfg.AllowedHosts...),
		APIKeys:               append([]string(nil), cfg.APIKeys...),
		FeatureFlags:          flags,
	}
}

// Get returns the tenant with the given id.
func (r *Registry) Get(tenantID string) (*Context, bool) {
	t, ok := r.byID[tenantID]
	return t, ok
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	return len(r.byID)
}

// Resolve identifies the tenant for a request: explicit x-tenant-id header
// first, then host mapping, then API key. Returns false when no tenant
// matches.
func (r *Registry) Resolve(req *http.Request) (*Context, bool) {
	if id := req.Header.Get("x-tenant-id"); id != "" {
		return r.Get(id)
	}

	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if id, ok := r.byHost[host]; ok {
		return r.Get(id)
	}

	if key := req.Header.Get("x-api-key"); key != "" {
		if id, ok := r.byKey[key]; ok {
			return r.Get(id)
		}
	}

	return nil, false
}

// Package tenant holds the per-tenant configuration model and the
// read-mostly registry used to resolve tenants on each request.
package tenant

import (
	"context"
)

// RateLimit is the admission policy for a tenant. A zero Burst disables
// the burst check.
type RateLimit struct {
	PerMinute      int
	Burst          int
	WindowSec      int
	BurstWindowSec int
}

// TokenBudget caps accumulated token usage per calendar day/month (UTC).
// A zero value means unlimited.
type TokenBudget struct {
	Daily   int
	Monthly int
}

// Context is the immutable per-tenant configuration. It is loaded once at
// startup; request handling code must never mutate it.
type Context struct {
	TenantID              string
	GatewayID             string
	ChatModel             string
	EmbeddingModel        string
	FallbackModel         string
	RateLimit             RateLimit
	TokenBudget           TokenBudget
	SessionRetentionDays  int
	MaxMessagesPerSession int
	AllowedModels         []string
	AllowedHosts          []string
	APIKeys               []string
	FeatureFlags          map[string]bool
}

// FlagEnabled reports whether a feature flag is set for the tenant.
func (c *Context) FlagEnabled(name string) bool {
	return c.FeatureFlags[name]
}

// ModelAllowed reports whether model passes the tenant's allow-list. The
// list is only consulted when the modelAllowList flag is enabled.
func (c *Context) ModelAllowed(model string) bool {
	if !c.FlagEnabled("modelAllowList") {
		return true
	}
	for _, m := range c.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// contextKey is the type for tenant context keys
type contextKey struct{}

// WithTenant returns a context carrying the resolved tenant.
func WithTenant(ctx context.Context, t *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tenant resolved for this request.
func FromContext(ctx context.Context) (*Context, bool) {
	t, ok := ctx.Value(contextKey{}).(*Context)
	return t, ok
}

package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRole reports whether r is one of the supported chat roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a chat message sent to or received from a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is a message stored in a session log. Immutable once
// appended; pruning removes whole messages, never edits them.
type ChatMessage struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
	TokenCount int    `json:"tokenCount,omitempty"`
}

// Invocation attempt statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// UsageMetrics is emitted once per model-invocation attempt, including
// failed attempts before failover.
type UsageMetrics struct {
	TenantID    string `json:"tenantId"`
	GatewayID   string `json:"gatewayId"`
	ModelID     string `json:"modelId"`
	LatencyMs   int64  `json:"latencyMs"`
	TokensIn    int    `json:"tokensIn,omitempty"`
	TokensOut   int    `json:"tokensOut,omitempty"`
	TotalTokens int    `json:"totalTokens,omitempty"`
	Streamed    bool   `json:"streamed"`
	Status      string `json:"status"` // success | error
	TraceID     string `json:"traceId,omitempty"`
	Route       string `json:"route,omitempty"`
}

// Total returns the total token count, deriving it from in/out counts
// when the provider did not report one.
func (m UsageMetrics) Total() int {
	if m.TotalTokens > 0 {
		return m.TotalTokens
	}
	return m.TokensIn + m.TokensOut
}

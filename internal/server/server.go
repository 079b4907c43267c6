// Package server is the HTTP-facing orchestrator: routing, middleware,
// and the handlers that sequence admission, sessions, model invocation,
// and the RAG pipeline per request.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/gateway"
	"github.com/tjfontaine/tenantgate/internal/rag"
	"github.com/tjfontaine/tenantgate/internal/ratelimit"
	"github.com/tjfontaine/tenantgate/internal/session"
	"github.com/tjfontaine/tenantgate/internal/tenant"
	"github.com/tjfontaine/tenantgate/internal/tokens"
	"github.com/tjfontaine/tenantgate/internal/usage"
)

const (
	defaultMaxMessageLength   = 4096
	defaultMaxRequestBodySize = 10240
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Logger   *slog.Logger
	Registry *tenant.Registry
	Limiter  *ratelimit.Limiter
	Sessions *session.Log
	Gateway  *gateway.Gateway
	Pipeline *rag.Pipeline
	Usage    *usage.Tracker
	Recorder *usage.Recorder
	Counter  *tokens.Counter

	MaxMessageLength   int
	MaxRequestBodySize int64
}

// Server hosts the HTTP API.
type Server struct {
	Router *chi.Mux
	Port   int

	logger   *slog.Logger
	registry *tenant.Registry
	limiter  *ratelimit.Limiter
	sessions *session.Log
	gateway  *gateway.Gateway
	pipeline *rag.Pipeline
	usage    *usage.Tracker
	recorder *usage.Recorder
	counter  *tokens.Counter

	maxMessageLength int
}

// New builds a server with its middleware chain and routes.
func New(port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxMessageLength <= 0 {
		deps.MaxMessageLength = defaultMaxMessageLength
	}
	if deps.MaxRequestBodySize <= 0 {
		deps.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if deps.Counter == nil {
		deps.Counter = tokens.NewCounter()
	}

	s := &Server{
		Port:             port,
		logger:           deps.Logger,
		registry:         deps.Registry,
		limiter:          deps.Limiter,
		sessions:         deps.Sessions,
		gateway:          deps.Gateway,
		pipeline:         deps.Pipeline,
		usage:            deps.Usage,
		recorder:         deps.Recorder,
		counter:          deps.Counter,
		maxMessageLength: deps.MaxMessageLength,
	}

	r := chi.NewRouter()
	r.Use(TraceIDMiddleware)
	r.Use(LoggingMiddleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "tenantgate")
	})
	r.Use(TenantMiddleware(deps.Registry))
	r.Use(BodyLimitMiddleware(deps.MaxRequestBodySize))

	// Unmatched routes and wrong methods still render the error envelope.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrNotFound("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrMethodNotAllowed())
	})

	r.Get("/health", s.handleHealth)

	// Chat and RAG routes share a cooperative timeout; streaming chat
	// is exempt so long generations are not cut off mid-stream.
	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(60 * time.Second))
		r.Get("/chat/{sessionID}/history", s.handleHistory)
		r.Delete("/chat/{sessionID}", s.handleClear)
		r.Post("/ingest", s.handleIngest)
		r.Post("/search", s.handleSearch)
	})
	r.Post("/chat", s.handleChat)

	s.Router = r
	return s
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())
	writeOK(w, r, map[string]any{
		"status":          "ok",
		"tenantId":        tn.TenantID,
		"modelId":         tn.ChatModel,
		"fallbackModelId": tn.FallbackModel,
	})
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/tenantgate/internal/config"
	"github.com/tjfontaine/tenantgate/internal/gateway"
	"github.com/tjfontaine/tenantgate/internal/provider"
	"github.com/tjfontaine/tenantgate/internal/rag"
	"github.com/tjfontaine/tenantgate/internal/ratelimit"
	"github.com/tjfontaine/tenantgate/internal/server"
	"github.com/tjfontaine/tenantgate/internal/session"
	"github.com/tjfontaine/tenantgate/internal/storage/actor"
	"github.com/tjfontaine/tenantgate/internal/storage/kv"
	"github.com/tjfontaine/tenantgate/internal/telemetry"
	"github.com/tjfontaine/tenantgate/internal/tenant"
	"github.com/tjfontaine/tenantgate/internal/tokens"
	"github.com/tjfontaine/tenantgate/internal/usage"
	"github.com/tjfontaine/tenantgate/internal/vectorstore"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("TG_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Tenants) == 0 {
		log.Fatal("No tenants configured")
	}

	shutdown, err := telemetry.Init("tenantgate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// Usage counters and the search cache share one key-value store:
	// Redis when configured, in-memory otherwise.
	var store kv.Store
	if cfg.Redis.URL != "" {
		redis, err := kv.NewRedis(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		store = redis
		logger.Info("using redis kv store")
	} else {
		store = kv.NewMemory()
		logger.Info("using in-memory kv store")
	}

	actorStore, err := actor.NewSQLiteStore(cfg.Actor.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open actor store: %v", err)
	}
	defer actorStore.Close()
	runtime := actor.NewRuntime(actorStore)

	var providerOpts []provider.OpenAIOption
	if cfg.Provider.BaseURL != "" {
		providerOpts = append(providerOpts, provider.WithBaseURL(cfg.Provider.BaseURL))
	}
	p := provider.NewOpenAI(cfg.Provider.APIKey, providerOpts...)

	counter := tokens.NewCounter()
	gw := gateway.New(p, counter, logger)

	var vectors vectorstore.Store
	if cfg.Vector.URL != "" {
		qdrant := vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:        cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
		})
		if err := qdrant.Init(context.Background(), cfg.Vector.Dimension); err != nil {
			log.Fatalf("Failed to initialize vector collection: %v", err)
		}
		vectors = qdrant
		logger.Info("using qdrant vector store", slog.String("collection", cfg.Vector.Collection))
	} else {
		vectors = vectorstore.NewMemory()
		logger.Info("using in-memory vector store")
	}

	tracker := usage.NewTracker(store, logger)
	recorder := usage.NewRecorder(tracker, logger)

	pipeline := rag.New(gw, p, vectors,
		rag.NewSearchCache(store, 0, logger),
		logger,
		rag.WithUsageFunc(recorder.Record),
	)

	srv := server.New(cfg.Server.Port, server.Deps{
		Logger:             logger,
		Registry:           tenant.NewRegistry(cfg.Tenants),
		Limiter:            ratelimit.New(runtime),
		Sessions:           session.NewLog(runtime),
		Gateway:            gw,
		Pipeline:           pipeline,
		Usage:              tracker,
		Recorder:           recorder,
		Counter:            counter,
		MaxMessageLength:   cfg.Limits.MaxMessageLength,
		MaxRequestBodySize: int64(cfg.Limits.MaxRequestBodySize),
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

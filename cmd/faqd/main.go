package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/auth"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/config"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/embedder"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/llm"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/memory"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/metrics"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository/postgres"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/reranker"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/retrieval"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/router"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/server"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/service"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/tracing"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("starting FAQ dialog service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TracingSampleRate,
		ServiceName:  "faqd",
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			slog.Error("failed to flush spans", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var checks []server.ReadinessCheck
	retrievalOpts := []retrieval.Option{retrieval.WithLogger(logger), retrieval.WithMetrics(m)}

	// PostgreSQL backs the full-text index, the keyword source and tenant settings
	var tenantRepo repository.TenantRepository
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		slog.Info("connected to PostgreSQL")

		passages := postgres.NewPassageRepo(db)
		tenantRepo = postgres.NewTenantRepo(db)
		retrievalOpts = append(retrievalOpts, retrieval.WithPrimary(retrieval.NewPassageIndex(passages)))
		if cfg.RetrievalEnableKeyword {
			retrievalOpts = append(retrievalOpts, retrieval.WithRetriever(retrieval.NewKeywordRetriever(passages)))
		}
		checks = append(checks, server.ReadinessCheck{Name: "postgres", Check: db.Ping})
	}

	// Qdrant plus the Ollama embedder back the vector source
	if cfg.QdrantGRPCURL != "" && cfg.RetrievalEnableVector {
		store, err := vectorstore.NewQdrantStore(cfg.QdrantGRPCURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer store.Close()

		embed, err := embedder.NewCachedEmbedder(embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaEmbeddingModel,
		}), cfg.EmbeddingCacheSize)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		slog.Info("initialized vector source", "model", cfg.OllamaEmbeddingModel)

		retrievalOpts = append(retrievalOpts, retrieval.WithRetriever(
			retrieval.NewVectorRetriever(embed, store, cfg.VectorMinScore, cfg.DefaultVectorTenant),
		))
		checks = append(checks, server.ReadinessCheck{Name: "qdrant", Check: store.Ping})
	}

	search := retrieval.NewEngine(retrieval.Config{
		IndexName:   cfg.RetrievalIndex,
		MockEnabled: cfg.RetrievalMockEnabled,
		TimeBudget:  cfg.RetrievalTimeBudget,
	}, retrievalOpts...)
	if !search.Configured() {
		slog.Warn("no retrieval backend configured", "mock_enabled", cfg.RetrievalMockEnabled)
	}

	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.EconomyModel),
	)

	rerankOpts := []reranker.Option{reranker.WithLogger(logger), reranker.WithMetrics(m)}
	switch cfg.RerankBackend {
	case "cross_encoder":
		if cfg.RerankModelURL != "" {
			rerankOpts = append(rerankOpts, reranker.WithLoader(reranker.NewCrossEncoderLoader(reranker.CrossEncoderConfig{
				BaseURL: cfg.RerankModelURL,
			})))
		}
	case "llm":
		rerankOpts = append(rerankOpts, reranker.WithLoader(reranker.NewLLMLoader(llmClient, cfg.RerankLLMModel)))
	}
	rerank := reranker.NewEngine(reranker.Config{
		CandidateWindow: cfg.RerankCandidateWindow,
		MinQueryChars:   cfg.RerankMinQueryChars,
	}, rerankOpts...)
	if cfg.RerankWarmupOnStart {
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		res := rerank.Warmup(warmCtx)
		warmCancel()
		slog.Info("rerank warmup finished", "ok", res.OK, "engine", res.Engine, "model", res.Model, "error", res.Error)
	}

	var routerOpts []router.Option
	if cfg.RouterForceTier != "" {
		tier, err := router.ParseTier(cfg.RouterForceTier)
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, router.WithForcedTier(tier))
	}
	tierRouter := router.New(routerOpts...)

	generator := llm.NewTieredGenerator(llmClient, llm.TierModels{
		Economy: cfg.EconomyModel,
		Premium: cfg.PremiumModel,
	}, "")

	// Session history: Redis when configured, process memory otherwise
	var history memory.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		history = memory.NewRedisStore(rdb, cfg.SessionMaxMsgs, cfg.SessionTTL)
		checks = append(checks, server.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		slog.Info("using Redis session history")
	} else {
		mem := memory.NewInMemoryStore(cfg.SessionMaxMsgs, cfg.SessionTTL)
		defer mem.Close()
		history = mem
	}

	dialog := service.NewDialog(search, rerank, tierRouter, generator,
		service.WithMemory(history),
		service.WithTenantSettings(service.NewTenantSettings(tenantRepo, service.TenantDefaults{
			TopK:                 cfg.DefaultTopK,
			MaxPremiumPerRequest: cfg.RouterMaxPremiumPerRequest,
		}, logger)),
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithTracerProvider(tp.TracerProvider()),
	)

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(&auth.JWTConfig{
			Secret: cfg.JWTSecret,
			Expiry: cfg.JWTExpiry,
			Issuer: "faqd",
		})
	}

	grpcServer := server.NewGRPCServer(server.GRPCServerConfig{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:            cfg.HTTPPort,
		Logger:          logger,
		AllowedOrigins:  []string{"*"}, // Configure in production
		JWT:             jwtManager,
		Metrics:         metrics.Handler(reg),
		ReadinessChecks: checks,
	}, server.API{
		Dialog:   dialog,
		Search:   search,
		Reranker: rerank,
		Router:   tierRouter,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Start servers
	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()
	grpcServer.SetServing(true)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	slog.Info("shutting down servers...")
	grpcServer.SetServing(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown gRPC server", "error", err)
	}

	slog.Info("servers stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.TenantRepository  = (*postgres.TenantRepo)(nil)
	_ repository.PassageRepository = (*postgres.PassageRepo)(nil)
	_ vectorstore.VectorStore      = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder            = (*embedder.CachedEmbedder)(nil)
	_ llm.LLM                      = (*llm.OllamaClient)(nil)
	_ memory.Store                 = (*memory.RedisStore)(nil)
	_ service.Searcher             = (*retrieval.Engine)(nil)
	_ service.Reranker             = (*reranker.Engine)(nil)
	_ server.RerankService         = (*reranker.Engine)(nil)
)

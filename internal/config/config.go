// Package config loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/router"
)

// Config holds all configuration for the FAQ dialog service
type Config struct {
	// Server
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"9090"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// PostgreSQL (full-text passages, FAQ keywords, tenant settings). Empty disables those sources.
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant. Empty disables the vector source.
	QdrantGRPCURL string `env:"QDRANT_GRPC_URL"`

	// Redis session history. Empty keeps history in process memory.
	RedisURL       string        `env:"REDIS_URL"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SessionMaxMsgs int           `env:"SESSION_MAX_MESSAGES" envDefault:"20"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	EmbeddingCacheSize   int    `env:"EMBEDDING_CACHE_SIZE" envDefault:"1024"`

	// Generation tiers
	EconomyModel string `env:"LLM_ECONOMY_MODEL" envDefault:"gpt-oss:20b"`
	PremiumModel string `env:"LLM_PREMIUM_MODEL" envDefault:"gpt-oss:120b"`

	// Retrieval
	RetrievalIndex         string        `env:"RETRIEVAL_INDEX" envDefault:"faq_passages"`
	RetrievalMockEnabled   bool          `env:"RETRIEVAL_MOCK_ENABLED" envDefault:"false"`
	RetrievalTimeBudget    time.Duration `env:"RETRIEVAL_TIME_BUDGET" envDefault:"1500ms"`
	RetrievalEnableKeyword bool          `env:"RETRIEVAL_ENABLE_KEYWORD" envDefault:"true"`
	RetrievalEnableVector  bool          `env:"RETRIEVAL_ENABLE_VECTOR" envDefault:"true"`
	VectorMinScore         float32       `env:"VECTOR_MIN_SCORE" envDefault:"0.35"`
	DefaultVectorTenant    string        `env:"DEFAULT_VECTOR_TENANT" envDefault:"default"`

	// Rerank
	RerankBackend         string `env:"RERANK_BACKEND" envDefault:"cross_encoder"` // cross_encoder, llm, none
	RerankModelURL        string `env:"RERANK_MODEL_URL"`
	RerankLLMModel        string `env:"RERANK_LLM_MODEL" envDefault:"gpt-oss:20b"`
	RerankCandidateWindow int    `env:"RERANK_CANDIDATE_WINDOW" envDefault:"24"`
	RerankMinQueryChars   int    `env:"RERANK_MIN_QUERY_CHARS" envDefault:"2"`
	RerankWarmupOnStart   bool   `env:"RERANK_WARMUP_ON_START" envDefault:"true"`

	// Router
	RouterForceTier            string `env:"ROUTER_FORCE_TIER"`
	RouterMaxPremiumPerRequest int    `env:"ROUTER_MAX_PREMIUM_PER_REQUEST" envDefault:"1"`

	// Dialog
	DefaultTopK int `env:"DEFAULT_TOP_K" envDefault:"5"`

	// Tracing (OTLP/HTTP export of dialog spans)
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	// Auth
	AuthEnabled bool          `env:"AUTH_ENABLED" envDefault:"false"`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.RerankBackend {
	case "cross_encoder", "llm", "none":
	default:
		return fmt.Errorf("invalid RERANK_BACKEND %q", c.RerankBackend)
	}
	if _, err := router.ParseTier(c.RouterForceTier); err != nil {
		return fmt.Errorf("invalid ROUTER_FORCE_TIER: %w", err)
	}
	if c.RouterMaxPremiumPerRequest < 1 {
		return fmt.Errorf("ROUTER_MAX_PREMIUM_PER_REQUEST must be >= 1, got %d", c.RouterMaxPremiumPerRequest)
	}
	if c.RerankCandidateWindow < 1 {
		return fmt.Errorf("RERANK_CANDIDATE_WINDOW must be >= 1, got %d", c.RerankCandidateWindow)
	}
	if c.DefaultTopK < 1 {
		return fmt.Errorf("DEFAULT_TOP_K must be >= 1, got %d", c.DefaultTopK)
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is set")
	}
	return nil
}

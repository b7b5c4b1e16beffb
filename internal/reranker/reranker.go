// Package reranker reorders retrieval candidates in two stages.
//
// Stage 1 is a lexical overlap score that always runs and needs no model. Stage 2
// hands the narrowed candidate window to a precision scorer (a cross-encoder
// runtime or an LLM) when one has been loaded by Warmup.
//
// # Trade-offs
//
//   - Latency: stage 2 adds one model round trip per turn (tens of ms for a
//     cross-encoder, seconds for an LLM).
//   - Quality: precision scoring helps most when several passages share the
//     query's vocabulary but only one answers it.
//   - Availability: running without a precision model is a supported permanent
//     mode; Rerank never fails.
package reranker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/metrics"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/retrieval"
)

// Mode names the engine that produced an ordering.
type Mode string

const (
	ModeHeuristic             Mode = "heuristic"
	ModePrecision             Mode = "precision"
	ModePrecisionWithFallback Mode = "precision_with_fallback"
)

const (
	// DefaultCandidateWindow is how many stage-1 candidates reach stage 2.
	DefaultCandidateWindow = 24

	// DefaultMinQueryChars is the shortest query, in runes, worth precision scoring.
	DefaultMinQueryChars = 2
)

// ScoredHit is a retrieval hit with the score of the engine that ordered it.
type ScoredHit struct {
	retrieval.Hit
	RerankScore float64 `json:"rerankScore"`
}

// Result is the reranked candidate list.
type Result struct {
	Items     []ScoredHit `json:"items"`
	ElapsedMs int64       `json:"elapsedMs"`
	Engine    Mode        `json:"engine"`
}

// PrecisionScorer scores query/candidate pairs. It returns one score per candidate,
// higher meaning more relevant.
type PrecisionScorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
	ModelName() string
}

// Loader produces a PrecisionScorer from its configured location.
type Loader interface {
	Load(ctx context.Context) (PrecisionScorer, error)
}

// ErrNoModelLocation is reported by Warmup when no loader is configured.
var ErrNoModelLocation = errors.New("precision model location not configured")

// WarmupResult reports the outcome of one Warmup call.
type WarmupResult struct {
	OK     bool   `json:"ok"`
	Engine Mode   `json:"engine"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Status is the engine's loaded state.
type Status struct {
	Loaded    bool   `json:"loaded"`
	Model     string `json:"model,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// Config holds rerank settings.
type Config struct {
	CandidateWindow int
	MinQueryChars   int
}

// Engine owns the precision scorer handle. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	loader  Loader
	logger  *slog.Logger
	metrics *metrics.Collectors

	mu        sync.RWMutex
	scorer    PrecisionScorer
	lastError string
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithLoader sets where Warmup loads the precision scorer from.
func WithLoader(l Loader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a rerank engine. It starts in heuristic mode until Warmup succeeds.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.CandidateWindow <= 0 {
		cfg.CandidateWindow = DefaultCandidateWindow
	}
	if cfg.MinQueryChars <= 0 {
		cfg.MinQueryChars = DefaultMinQueryChars
	}
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rerank orders hits for query and returns at most max(topK, 1) of them.
func (e *Engine) Rerank(ctx context.Context, query string, hits []retrieval.Hit, topK int) Result {
	start := time.Now()
	if len(hits) == 0 {
		e.metrics.RerankCompleted(string(ModeHeuristic))
		return Result{Items: []ScoredHit{}, ElapsedMs: 0, Engine: ModeHeuristic}
	}
	if topK < 1 {
		topK = 1
	}

	ranked := HeuristicRank(query, hits)
	if len(ranked) > e.cfg.CandidateWindow {
		ranked = ranked[:e.cfg.CandidateWindow]
	}

	mode := ModeHeuristic
	scorer := e.loadedScorer()
	if scorer != nil && len([]rune(strings.TrimSpace(query))) >= e.cfg.MinQueryChars && len(ranked) > 1 {
		precise, err := e.precisionRank(ctx, scorer, query, ranked)
		if err != nil {
			mode = ModePrecisionWithFallback
			e.logger.Warn("precision rerank failed, keeping heuristic order",
				"model", scorer.ModelName(),
				"candidates", len(ranked),
				"error", err,
			)
		} else {
			mode = ModePrecision
			ranked = precise
		}
	}

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	e.metrics.RerankCompleted(string(mode))
	return Result{
		Items:     ranked,
		ElapsedMs: time.Since(start).Milliseconds(),
		Engine:    mode,
	}
}

func (e *Engine) precisionRank(ctx context.Context, scorer PrecisionScorer, query string, ranked []ScoredHit) ([]ScoredHit, error) {
	texts := make([]string, len(ranked))
	for i, h := range ranked {
		texts[i] = h.Text
	}
	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(ranked) {
		return nil, errors.New("precision scorer returned a score count that does not match the candidates")
	}

	out := make([]ScoredHit, len(ranked))
	for i, h := range ranked {
		out[i] = ScoredHit{Hit: h.Hit, RerankScore: scores[i]}
	}
	sortByScore(out)
	return out, nil
}

// Warmup loads the precision scorer. It never fails the caller: errors are
// recorded and reported in the result. A failed attempt keeps any scorer that an
// earlier attempt loaded.
func (e *Engine) Warmup(ctx context.Context) WarmupResult {
	var (
		scorer PrecisionScorer
		err    = ErrNoModelLocation
	)
	if e.loader != nil {
		scorer, err = e.loader.Load(ctx)
		if err == nil && scorer == nil {
			err = errors.New("precision model loader returned no scorer")
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastError = err.Error()
		e.metrics.WarmupAttempted(false)
		e.logger.Info("precision rerank warmup failed", "error", err, "loaded", e.scorer != nil)
		return WarmupResult{OK: false, Engine: ModeHeuristic, Error: err.Error()}
	}

	e.scorer = scorer
	e.lastError = ""
	e.metrics.WarmupAttempted(true)
	e.logger.Info("precision rerank warmup succeeded", "model", scorer.ModelName())
	return WarmupResult{OK: true, Engine: ModePrecision, Model: scorer.ModelName()}
}

// Status reports whether a precision scorer is loaded and the last warmup error.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Status{Loaded: e.scorer != nil, LastError: e.lastError}
	if e.scorer != nil {
		s.Model = e.scorer.ModelName()
	}
	return s
}

func (e *Engine) loadedScorer() PrecisionScorer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scorer
}

// sortByScore orders by rerank score, then original score, both descending.
func sortByScore(hits []ScoredHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].RerankScore != hits[j].RerankScore {
			return hits[i].RerankScore > hits[j].RerankScore
		}
		return hits[i].Score > hits[j].Score
	})
}

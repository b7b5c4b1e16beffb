package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/metrics"
)

const (
	// PrimaryWindow bounds the primary full-text query. It is not caller controlled.
	PrimaryWindow = 50

	// MaxCandidates is the width of the merged list handed to the reranker.
	MaxCandidates = 40

	// SanityProbeQuery is the match-all query used for zero-hit recovery.
	SanityProbeQuery = "*"

	// DefaultTimeBudget applies when Config.TimeBudget is unset.
	DefaultTimeBudget = 1500 * time.Millisecond
)

// TextIndex is the primary full-text backend.
type TextIndex interface {
	Search(ctx context.Context, indexName, query string, window int) ([]Hit, error)
}

// Retriever is a supplementary source queried alongside the primary index.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query, tenantID string, limit int) ([]Hit, error)
}

// Config holds retrieval settings
type Config struct {
	IndexName   string
	MockEnabled bool
	TimeBudget  time.Duration
}

// Engine is the hybrid retrieval engine. Search never fails: backend errors become
// diagnostic notes and a degraded status.
type Engine struct {
	cfg        Config
	primary    TextIndex
	retrievers []Retriever
	logger     *slog.Logger
	metrics    *metrics.Collectors
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithPrimary sets the full-text index.
func WithPrimary(idx TextIndex) Option {
	return func(e *Engine) {
		e.primary = idx
	}
}

// WithRetriever adds a supplementary source.
func WithRetriever(r Retriever) Option {
	return func(e *Engine) {
		e.retrievers = append(e.retrievers, r)
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

// NewEngine creates a hybrid retrieval engine
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
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

// Configured reports whether any backend is wired.
func (e *Engine) Configured() bool {
	return e.primary != nil || len(e.retrievers) > 0
}

// sourceOutcome is what one backend reported. Outcomes are collected per source
// and concatenated in source order so notes stay deterministic.
type sourceOutcome struct {
	hits   []Hit
	notes  []string
	failed bool
}

// Search queries every configured source within the time budget, then merges,
// normalizes and truncates the hits.
func (e *Engine) Search(ctx context.Context, query, tenantID string) Result {
	start := time.Now()

	if !e.Configured() {
		if e.cfg.MockEnabled {
			return e.finish(start, query, mockHits(query), []string{
				"no retrieval backend configured; serving mock hits",
			}, StatusDegraded, true)
		}
		return e.finish(start, query, nil, []string{
			"no retrieval backend configured and mock disabled; returning empty result",
		}, StatusDegraded, false)
	}

	budgetCtx, cancel := context.WithTimeout(ctx, e.cfg.TimeBudget)
	defer cancel()

	outcomes := make([]sourceOutcome, 1+len(e.retrievers))
	var g errgroup.Group
	if e.primary != nil {
		g.Go(func() error {
			outcomes[0] = e.searchPrimary(budgetCtx, query)
			return nil
		})
	}
	for i, r := range e.retrievers {
		g.Go(func() error {
			outcomes[i+1] = e.searchSupplementary(budgetCtx, r, query, tenantID)
			return nil
		})
	}
	_ = g.Wait()

	var notes []string
	failed := false
	sets := make([][]Hit, 0, len(outcomes))
	for _, o := range outcomes {
		notes = append(notes, o.notes...)
		failed = failed || o.failed
		if len(o.hits) > 0 {
			sets = append(sets, o.hits)
		}
	}
	if errors.Is(budgetCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		notes = append(notes, fmt.Sprintf("time budget of %s exceeded; continuing with partial results", e.cfg.TimeBudget))
	}

	merged := mergeNormalized(sets)
	if len(merged) == 0 {
		if e.cfg.MockEnabled {
			notes = append(notes, fmt.Sprintf("no hits after %dms (budget %dms); falling back to mock hits",
				time.Since(start).Milliseconds(), e.cfg.TimeBudget.Milliseconds()))
			return e.finish(start, query, mockHits(query), notes, StatusDegraded, true)
		}
		status := StatusEmpty
		if failed {
			status = StatusDegraded
		}
		return e.finish(start, query, nil, notes, status, false)
	}

	if len(merged) > MaxCandidates {
		merged = merged[:MaxCandidates]
	}
	status := StatusOK
	if failed {
		status = StatusDegraded
	}
	return e.finish(start, query, merged, notes, status, false)
}

// searchPrimary runs the user query and, when it matches nothing, one sanity
// probe to tell an unmatched query from an empty or misconfigured index.
func (e *Engine) searchPrimary(ctx context.Context, query string) sourceOutcome {
	var out sourceOutcome
	index := e.cfg.IndexName

	hits, err := e.primary.Search(ctx, index, query, PrimaryWindow)
	if err != nil {
		out.failed = true
		out.notes = append(out.notes, fmt.Sprintf("primary index %q query failed: %v", index, err))
		return out
	}
	if len(hits) > 0 {
		out.hits = hits
		out.notes = append(out.notes, fmt.Sprintf("primary index %q returned %d hits", index, len(hits)))
		return out
	}

	out.notes = append(out.notes, fmt.Sprintf("primary index %q returned 0 hits; running sanity probe", index))
	probe, err := e.primary.Search(ctx, index, SanityProbeQuery, PrimaryWindow)
	switch {
	case err != nil:
		out.failed = true
		out.notes = append(out.notes, fmt.Sprintf("sanity probe failed: %v", err))
	case len(probe) == 0:
		out.notes = append(out.notes, fmt.Sprintf("sanity probe returned 0 hits; index %q is empty or misconfigured", index))
	default:
		out.hits = probe
		out.notes = append(out.notes, fmt.Sprintf("sanity probe returned %d hits; index has data but nothing matched the query", len(probe)))
	}
	return out
}

func (e *Engine) searchSupplementary(ctx context.Context, r Retriever, query, tenantID string) sourceOutcome {
	var out sourceOutcome
	hits, err := r.Retrieve(ctx, query, tenantID, PrimaryWindow)
	if err != nil {
		out.failed = true
		out.notes = append(out.notes, fmt.Sprintf("%s source failed: %v", r.Name(), err))
		return out
	}
	out.hits = hits
	out.notes = append(out.notes, fmt.Sprintf("%s source returned %d hits", r.Name(), len(hits)))
	return out
}

func (e *Engine) finish(start time.Time, query string, items []Hit, notes []string, status Status, mock bool) Result {
	elapsed := time.Since(start)
	if items == nil {
		items = []Hit{}
	}
	if notes == nil {
		notes = []string{}
	}
	e.metrics.RetrievalCompleted(string(status), mock, elapsed)

	level := slog.LevelDebug
	if status == StatusDegraded {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "hybrid retrieval completed",
		"query", query,
		"status", status,
		"mock", mock,
		"hits", len(items),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return Result{
		Items:     items,
		ElapsedMs: elapsed.Milliseconds(),
		Notes:     notes,
		Status:    status,
		Mock:      mock,
	}
}

// mergeNormalized z-normalizes each source's scores independently so they become
// comparable, keeps the best-scoring copy of duplicate ids, and sorts descending.
func mergeNormalized(sets [][]Hit) []Hit {
	best := make(map[string]int)
	var merged []Hit
	for _, set := range sets {
		scores := make([]float64, len(set))
		for i, h := range set {
			scores[i] = h.Score
		}
		norm := Normalizer(scores)
		for _, h := range set {
			h.Score = norm(h.Score)
			if idx, ok := best[h.ID]; ok {
				if h.Score > merged[idx].Score {
					merged[idx] = h
				}
				continue
			}
			best[h.ID] = len(merged)
			merged = append(merged, h)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

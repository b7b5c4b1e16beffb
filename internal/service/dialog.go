// Package service runs dialog turns: clarification, or retrieval, rerank, tier
// routing and answer generation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/memory"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/metrics"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/reranker"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/retrieval"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/router"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/tokens"
)

const tracerName = "faq.dialog"

// FallbackAnswer is returned when answer generation fails.
const FallbackAnswer = "申し訳ございません。ただいま回答を生成できませんでした。お手数ですが、時間をおいて再度お試しいただくか、お問い合わせフォームからご連絡ください。"

// historyWindow is how many stored messages feed the prompt.
const historyWindow = 10

// ErrMissingQuery is returned for a search turn whose plan names no query.
var ErrMissingQuery = errors.New("plan has no search query")

// StepType tags a plan step.
type StepType string

const (
	StepClarify StepType = "clarify"
	StepSearch  StepType = "search"
	StepAnswer  StepType = "answer"
)

// PlanStep is one step of an externally produced dialog plan.
type PlanStep struct {
	Type      StepType `json:"type" validate:"required,oneof=clarify search answer"`
	Questions []string `json:"questions,omitempty"`
	Query     string   `json:"query,omitempty"`
	TopK      int      `json:"topK,omitempty" validate:"gte=0,lte=50"`
}

// Plan tells the orchestrator whether to clarify or search, and with what.
type Plan struct {
	NeedsClarification  bool       `json:"needsClarification"`
	ClarifyingQuestions []string   `json:"clarifyingQuestions,omitempty"`
	FollowupQueries     []string   `json:"followupQueries,omitempty"`
	Steps               []PlanStep `json:"steps" validate:"dive"`
}

// TraceType names an executed stage in the turn's trace.
type TraceType string

const (
	TraceClarifyPlan     TraceType = "clarify_plan"
	TraceSearchExecuted  TraceType = "search_executed"
	TraceRouteDecided    TraceType = "route_decided"
	TraceAnswerGenerated TraceType = "answer_generated"
	TraceAnswerFailed    TraceType = "answer_failed"
)

// TraceStep records one executed stage. Notes and Engine are only filled for debug turns.
type TraceStep struct {
	Type            TraceType            `json:"type"`
	Questions       []string             `json:"questions,omitempty"`
	Query           string               `json:"query,omitempty"`
	Hits            []reranker.ScoredHit `json:"hits,omitempty"`
	RetrievalStatus retrieval.Status     `json:"retrievalStatus,omitempty"`
	Mock            bool                 `json:"mock,omitempty"`
	Engine          reranker.Mode        `json:"engine,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
	Route           *router.Decision     `json:"route,omitempty"`
	Tier            router.Tier          `json:"tier,omitempty"`
	Error           string               `json:"error,omitempty"`
	ElapsedMs       int64                `json:"elapsedMs"`
}

// TurnOptions are per-request knobs.
type TurnOptions struct {
	TopK  int  `json:"topK,omitempty" validate:"gte=0,lte=50"`
	Debug bool `json:"debug,omitempty"`
}

// RouteSignals are upstream estimates the router decides on.
type RouteSignals struct {
	Recall           *float64          `json:"recall,omitempty" validate:"omitempty,gte=0,lte=1"`
	Complexity       router.Complexity `json:"complexity,omitempty" validate:"omitempty,oneof=low medium high"`
	SafetyTag        string            `json:"safetyTag,omitempty"`
	IntentType       string            `json:"intentType,omitempty"`
	RequiresSafeMode bool              `json:"requiresSafeMode,omitempty"`
}

// TurnRequest is one user turn. History, when empty, is loaded from the session store.
type TurnRequest struct {
	SessionID string           `json:"sessionId,omitempty"`
	TenantID  string           `json:"tenantId,omitempty"`
	Plan      Plan             `json:"plan"`
	History   []memory.Message `json:"history,omitempty" validate:"dive"`
	Options   TurnOptions      `json:"options"`
	Signals   RouteSignals     `json:"signals"`
}

// TurnResult is the outcome of one turn. A clarification is never final and
// carries no answer; a final turn always has a search_executed step.
type TurnResult struct {
	TurnID              string           `json:"turnId"`
	SessionID           string           `json:"sessionId"`
	NeedsClarification  bool             `json:"needsClarification"`
	ClarifyingQuestions []string         `json:"clarifyingQuestions,omitempty"`
	Final               bool             `json:"final"`
	Answer              *string          `json:"answer"`
	Steps               []TraceStep      `json:"steps"`
	Route               *router.Decision `json:"route"`
}

// Searcher is the retrieval stage.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string) retrieval.Result
}

// Reranker is the rerank stage.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []retrieval.Hit, topK int) reranker.Result
}

// Router picks the model tier.
type Router interface {
	Route(rc router.RouteContext) router.Decision
}

// Generator produces the answer text on the chosen tier.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier router.Tier) (string, error)
}

// Dialog is the per-turn orchestrator.
type Dialog struct {
	searcher  Searcher
	reranker  Reranker
	router    Router
	generator Generator
	tenants   *TenantSettings
	memory    memory.Store
	logger    *slog.Logger
	metrics   *metrics.Collectors
	tracer    trace.Tracer
}

// DialogOption is a functional option for configuring Dialog.
type DialogOption func(*Dialog)

// WithMemory stores session history in store and reads it when a request has none.
func WithMemory(store memory.Store) DialogOption {
	return func(d *Dialog) {
		d.memory = store
	}
}

// WithTenantSettings sets the per-tenant settings resolver.
func WithTenantSettings(t *TenantSettings) DialogOption {
	return func(d *Dialog) {
		d.tenants = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DialogOption {
	return func(d *Dialog) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Collectors) DialogOption {
	return func(d *Dialog) {
		d.metrics = m
	}
}

// WithTracerProvider starts the turn spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) DialogOption {
	return func(d *Dialog) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// NewDialog creates the orchestrator.
func NewDialog(s Searcher, rr Reranker, rt Router, gen Generator, opts ...DialogOption) *Dialog {
	d := &Dialog{
		searcher:  s,
		reranker:  rr,
		router:    rt,
		generator: gen,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tenants == nil {
		d.tenants = NewTenantSettings(nil, TenantDefaults{}, d.logger)
	}
	return d
}

// Turn runs one dialog turn. The only error is a malformed plan; every backend
// failure degrades into the result instead.
func (d *Dialog) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	result := &TurnResult{
		TurnID:    uuid.NewString(),
		SessionID: req.SessionID,
		Steps:     []TraceStep{},
	}

	ctx, span := d.tracer.Start(ctx, "faq.dialog.turn", trace.WithAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.String("tenant_id", req.TenantID),
		attribute.Bool("needs_clarification", req.Plan.NeedsClarification),
	))
	defer span.End()

	if req.Plan.NeedsClarification {
		d.clarify(req.Plan, result)
		d.metrics.TurnCompleted("clarify", time.Since(start))
		d.logger.Info("dialog turn needs clarification",
			"turn_id", result.TurnID,
			"session_id", req.SessionID,
			"questions", len(result.ClarifyingQuestions),
		)
		return result, nil
	}

	query, planTopK, err := searchQuery(req.Plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.TurnCompleted("rejected", time.Since(start))
		return nil, err
	}

	settings := d.tenants.Resolve(ctx, req.TenantID)
	topK := resolveTopK(req.Options.TopK, planTopK, settings.TopK)
	history := d.history(ctx, req)

	ranked := d.search(ctx, req, query, topK, result)

	passages := deduplicatePassages(ranked, dedupThreshold)
	prompt := buildPrompt(settings.SystemPrompt, passages, query, history)

	decision := d.route(ctx, req, query, prompt, ranked, history, settings.MaxPremiumPerRequest, result)

	answer, outcome := d.generate(ctx, prompt, decision.Tier, result)
	result.Answer = &answer
	result.Final = true

	d.remember(ctx, req.SessionID, query, answer)

	elapsed := time.Since(start)
	d.metrics.TurnCompleted(outcome, elapsed)
	span.SetAttributes(
		attribute.String("tier", string(decision.Tier)),
		attribute.String("outcome", outcome),
	)
	d.logger.Info("dialog turn completed",
		"turn_id", result.TurnID,
		"session_id", req.SessionID,
		"tenant_id", req.TenantID,
		"tier", decision.Tier,
		"outcome", outcome,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (d *Dialog) clarify(plan Plan, result *TurnResult) {
	questions := plan.ClarifyingQuestions
	if len(questions) == 0 {
		for _, step := range plan.Steps {
			if step.Type == StepClarify {
				questions = append(questions, step.Questions...)
			}
		}
	}
	if questions == nil {
		questions = []string{}
	}
	result.NeedsClarification = true
	result.ClarifyingQuestions = questions
	result.Final = false
	result.Answer = nil
	result.Steps = append(result.Steps, TraceStep{Type: TraceClarifyPlan, Questions: questions})
}

// searchQuery picks the first non-blank followup query, falling back to the
// search step's own query. It also returns the search step's topK.
func searchQuery(plan Plan) (string, int, error) {
	var stepQuery string
	var stepTopK int
	for _, step := range plan.Steps {
		if step.Type == StepSearch {
			stepQuery = strings.TrimSpace(step.Query)
			stepTopK = step.TopK
			break
		}
	}
	for _, q := range plan.FollowupQueries {
		if q = strings.TrimSpace(q); q != "" {
			return q, stepTopK, nil
		}
	}
	if stepQuery == "" {
		return "", 0, ErrMissingQuery
	}
	return stepQuery, stepTopK, nil
}

// resolveTopK takes the first positive value in priority order.
func resolveTopK(candidates ...int) int {
	for _, k := range candidates {
		if k > 0 {
			return k
		}
	}
	return 5
}

func (d *Dialog) history(ctx context.Context, req TurnRequest) []memory.Message {
	if len(req.History) > 0 || d.memory == nil {
		return req.History
	}
	history, err := d.memory.GetRecentHistory(ctx, req.SessionID, historyWindow)
	if err != nil {
		d.logger.Warn("session history unavailable", "session_id", req.SessionID, "error", err)
		return nil
	}
	return history
}

func (d *Dialog) search(ctx context.Context, req TurnRequest, query string, topK int, result *TurnResult) []reranker.ScoredHit {
	ctx, span := d.tracer.Start(ctx, "faq.dialog.search", trace.WithAttributes(
		attribute.Int("top_k", topK),
	))
	defer span.End()

	retrieved := d.searcher.Search(ctx, query, req.TenantID)
	reranked := d.reranker.Rerank(ctx, query, retrieved.Items, topK)

	span.SetAttributes(
		attribute.String("retrieval_status", string(retrieved.Status)),
		attribute.Bool("mock", retrieved.Mock),
		attribute.Int("candidates", len(retrieved.Items)),
		attribute.Int("hits", len(reranked.Items)),
		attribute.String("rerank_engine", string(reranked.Engine)),
	)

	step := TraceStep{
		Type:            TraceSearchExecuted,
		Query:           query,
		Hits:            reranked.Items,
		RetrievalStatus: retrieved.Status,
		Mock:            retrieved.Mock,
		ElapsedMs:       retrieved.ElapsedMs + reranked.ElapsedMs,
	}
	if req.Options.Debug {
		step.Notes = retrieved.Notes
		step.Engine = reranked.Engine
	}
	result.Steps = append(result.Steps, step)
	return reranked.Items
}

func (d *Dialog) route(
	ctx context.Context,
	req TurnRequest,
	query, prompt string,
	hits []reranker.ScoredHit,
	history []memory.Message,
	maxPremium int,
	result *TurnResult,
) router.Decision {
	recall := req.Signals.Recall
	if recall == nil {
		recall = estimateRecall(query, hits)
	}
	rc := router.RouteContext{
		ContextTokens:     tokens.Count(prompt),
		Recall:            recall,
		Complexity:        req.Signals.Complexity,
		SafetyTag:         req.Signals.SafetyTag,
		ConversationDepth: memory.UserTurns(history),
		Used120bCount:     0,
		Max120bPerRequest: maxPremium,
		IntentType:        req.Signals.IntentType,
		RequiresSafeMode:  req.Signals.RequiresSafeMode,
	}
	decision := d.router.Route(rc)
	d.metrics.RouteDecided(string(decision.Tier))
	d.logger.DebugContext(ctx, "model tier routed",
		"tier", decision.Tier,
		"reasons", decision.Reasons,
		"context_tokens", rc.ContextTokens,
		"depth", rc.ConversationDepth,
	)

	result.Route = &decision
	result.Steps = append(result.Steps, TraceStep{Type: TraceRouteDecided, Route: &decision})
	return decision
}

// estimateRecall is the share of query tokens that appear in at least one hit.
// It is nil when there are no hits to judge.
func estimateRecall(query string, hits []reranker.ScoredHit) *float64 {
	queryTokens := retrieval.QueryTokens(query)
	if len(hits) == 0 || len(queryTokens) == 0 {
		return nil
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = strings.ToLower(h.Text)
	}
	covered := 0
	for _, tok := range queryTokens {
		for _, text := range texts {
			if strings.Contains(text, tok) {
				covered++
				break
			}
		}
	}
	r := float64(covered) / float64(len(queryTokens))
	return &r
}

func (d *Dialog) generate(ctx context.Context, prompt string, tier router.Tier, result *TurnResult) (string, string) {
	ctx, span := d.tracer.Start(ctx, "faq.dialog.generate", trace.WithAttributes(
		attribute.String("tier", string(tier)),
	))
	defer span.End()

	start := time.Now()
	answer, err := d.generator.Generate(ctx, prompt, tier)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("generator returned an empty answer")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("answer generation failed, returning fallback answer", "tier", tier, "error", err)
		result.Steps = append(result.Steps, TraceStep{
			Type:      TraceAnswerFailed,
			Tier:      tier,
			Error:     err.Error(),
			ElapsedMs: time.Since(start).Milliseconds(),
		})
		return FallbackAnswer, "answer_failed"
	}

	result.Steps = append(result.Steps, TraceStep{
		Type:      TraceAnswerGenerated,
		Tier:      tier,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
	return strings.TrimSpace(answer), "answered"
}

func (d *Dialog) remember(ctx context.Context, sessionID, query, answer string) {
	if d.memory == nil {
		return
	}
	for _, msg := range []memory.Message{
		{Role: memory.RoleUser, Content: query},
		{Role: memory.RoleAssistant, Content: answer},
	} {
		if err := d.memory.AddMessage(ctx, sessionID, msg); err != nil {
			d.logger.Warn("failed to store session message", "session_id", sessionID, "error", err)
			return
		}
	}
}

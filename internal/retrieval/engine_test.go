package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/metrics"
)

// fakeIndex answers primary queries from a fixed table keyed by query text.
type fakeIndex struct {
	mu      sync.Mutex
	results map[string][]Hit
	errs    map[string]error
	calls   []string
	windows []int
}

func (f *fakeIndex) Search(_ context.Context, _ string, query string, window int) ([]Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	f.windows = append(f.windows, window)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeRetriever struct {
	name  string
	hits  []Hit
	err   error
	block bool
}

func (f *fakeRetriever) Name() string { return f.name }

func (f *fakeRetriever) Retrieve(ctx context.Context, _, _ string, _ int) ([]Hit, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.hits, f.err
}

func primaryHits(n int) []Hit {
	hits := make([]Hit, n)
	for i := range hits {
		hits[i] = Hit{
			ID:     fmt.Sprintf("p-%02d", i),
			Text:   fmt.Sprintf("passage %d", i),
			Score:  float64(n - i),
			Source: SourcePrimaryText,
		}
	}
	return hits
}

func notesContain(notes []string, substr string) bool {
	for _, n := range notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

func TestEngine_NoBackend(t *testing.T) {
	t.Run("Should serve mock hits when enabled", func(t *testing.T) {
		e := NewEngine(Config{IndexName: "faq_passages", MockEnabled: true})

		res := e.Search(context.Background(), "返品 送料", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.True(t, res.Mock)
		require.Len(t, res.Items, 3)
		for _, h := range res.Items {
			assert.True(t, strings.HasPrefix(h.ID, "mock-"))
			assert.True(t, strings.HasPrefix(h.Text, "[mock]"))
		}
		assert.Contains(t, res.Items[0].Text, "返品 送料")
		assert.NotEmpty(t, res.Notes)
	})

	t.Run("Should return an empty degraded result when mock is disabled", func(t *testing.T) {
		e := NewEngine(Config{IndexName: "faq_passages"})

		res := e.Search(context.Background(), "返品 送料", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.False(t, res.Mock)
		assert.NotNil(t, res.Items)
		assert.Empty(t, res.Items)
		assert.True(t, notesContain(res.Notes, "no retrieval backend configured"))
	})
}

func TestEngine_Primary(t *testing.T) {
	t.Run("Should return normalized primary hits", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{"送料": primaryHits(3)}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Equal(t, StatusOK, res.Status)
		require.Len(t, res.Items, 3)
		assert.Equal(t, "p-00", res.Items[0].ID)
		assert.Greater(t, res.Items[0].Score, res.Items[1].Score)
		assert.Equal(t, []int{PrimaryWindow}, idx.windows)
		assert.True(t, notesContain(res.Notes, "returned 3 hits"))
	})

	t.Run("Should report degraded on primary failure", func(t *testing.T) {
		idx := &fakeIndex{errs: map[string]error{"送料": errors.New("connection refused")}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.Empty(t, res.Items)
		assert.True(t, notesContain(res.Notes, "connection refused"))
		assert.Equal(t, []string{"送料"}, idx.calls)
	})

	t.Run("Should fall back to mock hits on failure when enabled", func(t *testing.T) {
		idx := &fakeIndex{errs: map[string]error{"送料": errors.New("timeout")}}
		e := NewEngine(Config{IndexName: "faq_passages", MockEnabled: true}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.True(t, res.Mock)
		assert.Len(t, res.Items, 3)
		assert.True(t, notesContain(res.Notes, "falling back to mock hits"))
	})

	t.Run("Should run a sanity probe on zero hits and keep its results", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{SanityProbeQuery: primaryHits(2)}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "存在しない質問", "")

		assert.Equal(t, []string{"存在しない質問", SanityProbeQuery}, idx.calls)
		assert.Equal(t, StatusOK, res.Status)
		assert.Len(t, res.Items, 2)
		assert.True(t, notesContain(res.Notes, "nothing matched the query"))
	})

	t.Run("Should report empty when the index has no data", func(t *testing.T) {
		idx := &fakeIndex{}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Equal(t, StatusEmpty, res.Status)
		assert.Empty(t, res.Items)
		assert.True(t, notesContain(res.Notes, "empty or misconfigured"))
	})

	t.Run("Should fall back to mock hits when the index matches nothing", func(t *testing.T) {
		idx := &fakeIndex{}
		e := NewEngine(Config{IndexName: "faq_passages", MockEnabled: true}, WithPrimary(idx))

		res := e.Search(context.Background(), "返品 送料", "")

		assert.Equal(t, []string{"返品 送料", SanityProbeQuery}, idx.calls)
		assert.True(t, res.Mock)
		assert.Equal(t, StatusDegraded, res.Status)
		assert.NotEmpty(t, res.Items)
		assert.True(t, notesContain(res.Notes, "empty or misconfigured"))
		assert.True(t, notesContain(res.Notes, "falling back to mock hits"))
	})

	t.Run("Should report degraded when the sanity probe fails", func(t *testing.T) {
		idx := &fakeIndex{errs: map[string]error{SanityProbeQuery: errors.New("index missing")}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.True(t, notesContain(res.Notes, "sanity probe failed"))
	})

	t.Run("Should truncate to the candidate limit", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{"送料": primaryHits(PrimaryWindow)}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx))

		res := e.Search(context.Background(), "送料", "")

		assert.Len(t, res.Items, MaxCandidates)
		assert.Equal(t, "p-00", res.Items[0].ID)
	})
}

func TestEngine_Supplementary(t *testing.T) {
	t.Run("Should merge sources and dedupe by id", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{"返品": {
			{ID: "faq-1", Text: "返品について", Score: 8, Source: SourcePrimaryText},
			{ID: "faq-2", Text: "送料について", Score: 2, Source: SourcePrimaryText},
		}}}
		vec := &fakeRetriever{name: "vector", hits: []Hit{
			{ID: "faq-2", Text: "送料について", Score: 0.95, Source: SourceVector},
			{ID: "faq-3", Text: "交換について", Score: 0.35, Source: SourceVector},
		}}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx), WithRetriever(vec))

		res := e.Search(context.Background(), "返品", "shop-a")

		assert.Equal(t, StatusOK, res.Status)
		require.Len(t, res.Items, 3)
		seen := make(map[string]int)
		for _, h := range res.Items {
			seen[h.ID]++
		}
		assert.Equal(t, map[string]int{"faq-1": 1, "faq-2": 1, "faq-3": 1}, seen)
		assert.Equal(t, "faq-3", res.Items[2].ID)
	})

	t.Run("Should keep partial results when one source fails", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{"返品": primaryHits(2)}}
		kw := &fakeRetriever{name: "relational", err: errors.New("relation does not exist")}
		e := NewEngine(Config{IndexName: "faq_passages"}, WithPrimary(idx), WithRetriever(kw))

		res := e.Search(context.Background(), "返品", "")

		assert.Equal(t, StatusDegraded, res.Status)
		assert.Len(t, res.Items, 2)
		assert.True(t, notesContain(res.Notes, "relational source failed"))
	})

	t.Run("Should return within the time budget", func(t *testing.T) {
		idx := &fakeIndex{results: map[string][]Hit{"返品": primaryHits(2)}}
		slow := &fakeRetriever{name: "vector", block: true}
		e := NewEngine(Config{IndexName: "faq_passages", TimeBudget: 30 * time.Millisecond},
			WithPrimary(idx), WithRetriever(slow))

		start := time.Now()
		res := e.Search(context.Background(), "返品", "")

		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, StatusDegraded, res.Status)
		assert.Len(t, res.Items, 2)
		assert.True(t, notesContain(res.Notes, "time budget"))
	})
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	e := NewEngine(Config{MockEnabled: true}, WithMetrics(m))
	e.Search(context.Background(), "送料", "")

	count, err := testutil.GatherAndCount(reg, "faq_retrieval_results_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

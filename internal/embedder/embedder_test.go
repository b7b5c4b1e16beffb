package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaServer(t, &calls)
	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})

	v, err := e.Embed(context.Background(), "送料はいくらですか")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.Equal(t, 768, e.Dimension())

	_, err = e.Embed(context.Background(), "")
	assert.ErrorContains(t, err, "status 400")
}

func TestCachedEmbedder(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaServer(t, &calls)
	cached, err := NewCachedEmbedder(NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}), 8)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "返品 送料")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "返品 送料")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, err = cached.Embed(ctx, "返品 ポリシー")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

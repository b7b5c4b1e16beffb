package embedder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes query embeddings. Support questions repeat heavily, so
// most turns skip the embedding round trip.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with an LRU cache holding up to size vectors.
func NewCachedEmbedder(next Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func (c *CachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

var _ Embedder = (*CachedEmbedder)(nil)

// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// SearchResult represents a search result from the vector store
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32
	Metadata   map[string]string
}

// VectorStore defines the read side of the tenant-scoped vector store. Writing
// embeddings is owned by the ingestion system, not this service.
type VectorStore interface {
	// CollectionExists checks if a tenant's collection exists
	CollectionExists(ctx context.Context, tenantID string) (bool, error)

	// Search performs similarity search using dense vectors
	Search(ctx context.Context, tenantID string, vector []float32, topK int, minScore float32) ([]SearchResult, error)
}

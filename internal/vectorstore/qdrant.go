package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadDocumentID = "document_id"
	payloadContent    = "content"
)

// QdrantStore implements VectorStore using Qdrant
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ping checks that Qdrant answers.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// collectionName returns the collection name for a tenant
func collectionName(tenantID string) string {
	return fmt.Sprintf("tenant_%s", tenantID)
}

// CollectionExists checks if a collection exists
func (s *QdrantStore) CollectionExists(ctx context.Context, tenantID string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collectionName(tenantID))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Search performs similarity search against the tenant's collection
func (s *QdrantStore) Search(ctx context.Context, tenantID string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName(tenantID),
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(minScore),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		results = append(results, toSearchResult(point))
	}
	return results, nil
}

func toSearchResult(point *qdrant.ScoredPoint) SearchResult {
	result := SearchResult{
		ID:       pointID(point.GetId()),
		Score:    point.GetScore(),
		Metadata: make(map[string]string),
	}
	for k, v := range point.GetPayload() {
		switch k {
		case payloadDocumentID:
			result.DocumentID = v.GetStringValue()
		case payloadContent:
			result.Content = v.GetStringValue()
		default:
			result.Metadata[k] = v.GetStringValue()
		}
	}
	return result
}

// pointID renders both UUID and numeric point ids as strings.
func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)

package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/embedder"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/vectorstore"
)

// PassageIndex adapts a PassageRepository's full-text search to TextIndex.
type PassageIndex struct {
	repo repository.PassageRepository
}

// NewPassageIndex creates the primary full-text index backed by repo.
func NewPassageIndex(repo repository.PassageRepository) *PassageIndex {
	return &PassageIndex{repo: repo}
}

func (p *PassageIndex) Search(ctx context.Context, indexName, query string, window int) ([]Hit, error) {
	matches, err := p.repo.FullTextSearch(ctx, indexName, query, window)
	if err != nil {
		return nil, err
	}
	return matchesToHits(matches, SourcePrimaryText), nil
}

// KeywordRetriever matches query tokens against curated FAQ keywords.
type KeywordRetriever struct {
	repo repository.PassageRepository
}

// NewKeywordRetriever creates the relational keyword source.
func NewKeywordRetriever(repo repository.PassageRepository) *KeywordRetriever {
	return &KeywordRetriever{repo: repo}
}

func (k *KeywordRetriever) Name() string { return string(SourceRelational) }

func (k *KeywordRetriever) Retrieve(ctx context.Context, query, tenantID string, limit int) ([]Hit, error) {
	matches, err := k.repo.KeywordSearch(ctx, tenantID, QueryTokens(query), limit)
	if err != nil {
		return nil, err
	}
	return matchesToHits(matches, SourceRelational), nil
}

// VectorRetriever embeds the query and searches the tenant's vector collection.
type VectorRetriever struct {
	embedder      embedder.Embedder
	store         vectorstore.VectorStore
	minScore      float32
	defaultTenant string
}

// NewVectorRetriever creates the vector source. Queries without a tenant use defaultTenant.
func NewVectorRetriever(e embedder.Embedder, store vectorstore.VectorStore, minScore float32, defaultTenant string) *VectorRetriever {
	return &VectorRetriever{
		embedder:      e,
		store:         store,
		minScore:      minScore,
		defaultTenant: defaultTenant,
	}
}

func (v *VectorRetriever) Name() string { return string(SourceVector) }

func (v *VectorRetriever) Retrieve(ctx context.Context, query, tenantID string, limit int) ([]Hit, error) {
	if tenantID == "" {
		tenantID = v.defaultTenant
	}
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := v.store.Search(ctx, tenantID, vec, limit, v.minScore)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		text := r.Content
		if title := r.Metadata["title"]; title != "" {
			text = title + "\n" + text
		}
		hits = append(hits, Hit{
			ID:     r.ID,
			Text:   text,
			Score:  float64(r.Score),
			Source: SourceVector,
		})
	}
	return hits, nil
}

// QueryTokens lower-cases the query and splits it on whitespace, dropping duplicates.
// Both the keyword source and the reranker use this tokenization.
func QueryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

func matchesToHits(matches []*repository.PassageMatch, source Source) []Hit {
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		text := m.Body
		if m.Title != "" {
			text = m.Title + "\n" + m.Body
		}
		hits = append(hits, Hit{
			ID:     m.ID,
			Text:   text,
			Score:  m.Score,
			Source: source,
		})
	}
	return hits
}

var (
	_ TextIndex = (*PassageIndex)(nil)
	_ Retriever = (*KeywordRetriever)(nil)
	_ Retriever = (*VectorRetriever)(nil)
)

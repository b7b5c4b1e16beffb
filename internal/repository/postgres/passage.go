package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
)

// matchAllQuery mirrors the sanity probe used by the retrieval engine.
const matchAllQuery = "*"

// PassageRepo implements repository.PassageRepository.
//
// Expected schema (pg_trgm enabled):
//
//	faq_passages(id text primary key, index_name text, tenant_id text, title text, body text,
//	             search_vector tsvector, updated_at timestamptz)
//	faq_entries(id text primary key, tenant_id text, question text, answer text, keywords text[])
type PassageRepo struct {
	db *DB
}

// NewPassageRepo creates a new passage repository
func NewPassageRepo(db *DB) *PassageRepo {
	return &PassageRepo{db: db}
}

// FullTextSearch ranks passages by text-search rank plus trigram similarity, which
// keeps unsegmented Japanese queries matchable.
func (r *PassageRepo) FullTextSearch(ctx context.Context, indexName, query string, limit int) ([]*repository.PassageMatch, error) {
	if query == matchAllQuery {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT id, COALESCE(tenant_id, ''), title, body, 0::float8 AS score
			FROM faq_passages
			WHERE index_name = $1
			ORDER BY updated_at DESC
			LIMIT $2
		`, indexName, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to probe index %s: %w", indexName, err)
		}
		return scanMatches(rows)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, COALESCE(tenant_id, ''), title, body,
		       (ts_rank_cd(search_vector, websearch_to_tsquery('simple', $2)) + similarity(body, $2))::float8 AS score
		FROM faq_passages
		WHERE index_name = $1
		  AND (search_vector @@ websearch_to_tsquery('simple', $2) OR body % $2)
		ORDER BY score DESC
		LIMIT $3
	`, indexName, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", indexName, err)
	}
	return scanMatches(rows)
}

// KeywordSearch scores FAQ entries by the number of curated keywords shared with the query tokens
func (r *PassageRepo) KeywordSearch(ctx context.Context, tenantID string, keywords []string, limit int) ([]*repository.PassageMatch, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, COALESCE(tenant_id, ''), question, answer,
		       cardinality(ARRAY(SELECT unnest(keywords) INTERSECT SELECT unnest($2::text[])))::float8 AS score
		FROM faq_entries
		WHERE (tenant_id IS NULL OR tenant_id = NULLIF($1, ''))
		  AND keywords && $2::text[]
		ORDER BY score DESC, id
		LIMIT $3
	`, tenantID, keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search faq keywords: %w", err)
	}
	return scanMatches(rows)
}

func scanMatches(rows pgx.Rows) ([]*repository.PassageMatch, error) {
	defer rows.Close()

	var matches []*repository.PassageMatch
	for rows.Next() {
		var m repository.PassageMatch
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Title, &m.Body, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}
	return matches, nil
}

// Ensure PassageRepo implements the interface
var _ repository.PassageRepository = (*PassageRepo)(nil)

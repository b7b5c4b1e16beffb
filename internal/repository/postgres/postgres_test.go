package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchColumns = []string{"id", "tenant_id", "title", "body", "score"}

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewWithPool(mockPool), mockPool
}

func TestPassageRepo_FullTextSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should rank passages for a free-text query", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewPassageRepo(db)

		mockPool.ExpectQuery("FROM faq_passages").
			WithArgs("faq_passages", "送料", 50).
			WillReturnRows(pgxmock.NewRows(matchColumns).
				AddRow("p1", "", "送料について", "送料は全国一律550円です。", 0.82).
				AddRow("p2", "shop-a", "配送", "配送には2〜3日かかります。", 0.31))

		matches, err := repo.FullTextSearch(ctx, "faq_passages", "送料", 50)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "p1", matches[0].ID)
		assert.Equal(t, 0.82, matches[0].Score)
		assert.Equal(t, "shop-a", matches[1].TenantID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should use the match-all statement for the probe query", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewPassageRepo(db)

		mockPool.ExpectQuery("ORDER BY updated_at DESC").
			WithArgs("faq_passages", 50).
			WillReturnRows(pgxmock.NewRows(matchColumns).
				AddRow("p9", "", "営業時間", "平日10時から18時まで営業しています。", 0.0))

		matches, err := repo.FullTextSearch(ctx, "faq_passages", "*", 50)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "p9", matches[0].ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should wrap query errors", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewPassageRepo(db)

		mockPool.ExpectQuery("FROM faq_passages").
			WithArgs("faq_passages", "返品", 50).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.FullTextSearch(ctx, "faq_passages", "返品", 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestPassageRepo_KeywordSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should query entries by keyword overlap", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewPassageRepo(db)
		keywords := []string{"返品", "送料"}

		mockPool.ExpectQuery("FROM faq_entries").
			WithArgs("shop-a", keywords, 10).
			WillReturnRows(pgxmock.NewRows(matchColumns).
				AddRow("e1", "shop-a", "返品送料は？", "返品時の送料はお客様負担です。", 2.0))

		matches, err := repo.KeywordSearch(ctx, "shop-a", keywords, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "返品送料は？", matches[0].Title)
		assert.Equal(t, 2.0, matches[0].Score)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should skip the database without keywords", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewPassageRepo(db)

		matches, err := repo.KeywordSearch(ctx, "shop-a", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestTenantRepo_GetByID(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "name", "config", "created_at", "updated_at"}

	t.Run("Should decode tenant settings", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewTenantRepo(db)
		id := uuid.New()
		now := time.Now()

		mockPool.ExpectQuery("FROM tenants").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(id, "Example Shop", []byte(`{"top_k":3,"max_premium_per_request":2}`), now, now))

		tenant, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Example Shop", tenant.Name)
		assert.Equal(t, 3, tenant.Config.TopK)
		assert.Equal(t, 2, tenant.Config.MaxPremiumPerRequest)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should map missing rows to ErrNotFound", func(t *testing.T) {
		db, mockPool := newMockDB(t)
		repo := NewTenantRepo(db)
		id := uuid.New()

		mockPool.ExpectQuery("FROM tenants").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

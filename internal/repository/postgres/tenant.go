package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
)

// TenantRepo implements repository.TenantRepository
type TenantRepo struct {
	db *DB
}

// NewTenantRepo creates a new tenant repository
func NewTenantRepo(db *DB) *TenantRepo {
	return &TenantRepo{db: db}
}

// GetByID retrieves a tenant and its dialog settings
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	var tenant repository.Tenant
	var configJSON []byte

	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, config, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&tenant.ID, &tenant.Name, &configJSON, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &tenant.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return &tenant, nil
}

// Ensure TenantRepo implements the interface
var _ repository.TenantRepository = (*TenantRepo)(nil)

// Package repository defines domain models and data access interfaces for FAQ passages and tenant settings.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Tenant represents a storefront whose FAQ content and limits are isolated from others
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Config    TenantConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantConfig holds tenant-specific dialog settings. Zero values fall back to service defaults.
type TenantConfig struct {
	TopK                 int    `json:"top_k"`
	MaxPremiumPerRequest int    `json:"max_premium_per_request"`
	SystemPrompt         string `json:"system_prompt"`
}

// PassageMatch is a passage returned by a database search with its backend-native score
type PassageMatch struct {
	ID       string
	TenantID string
	Title    string
	Body     string
	Score    float64
}

// TenantRepository defines read access to tenant settings
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
}

// PassageRepository defines search operations over stored FAQ passages
type PassageRepository interface {
	// FullTextSearch ranks passages of one index against a free-text query.
	// The query "*" matches every passage of the index.
	FullTextSearch(ctx context.Context, indexName, query string, limit int) ([]*PassageMatch, error)

	// KeywordSearch returns FAQ entries whose curated keywords overlap the given tokens.
	// An empty tenantID searches shared entries only.
	KeywordSearch(ctx context.Context, tenantID string, keywords []string, limit int) ([]*PassageMatch, error)
}

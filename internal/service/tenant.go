package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/repository"
)

// TenantDefaults apply to tenants without stored settings and to anonymous requests.
type TenantDefaults struct {
	TopK                 int
	MaxPremiumPerRequest int
	SystemPrompt         string
}

// TenantSettings resolves per-tenant dialog settings, filling gaps with defaults.
type TenantSettings struct {
	repo     repository.TenantRepository
	defaults TenantDefaults
	logger   *slog.Logger
}

// NewTenantSettings creates a resolver. repo may be nil, in which case every
// tenant gets the defaults.
func NewTenantSettings(repo repository.TenantRepository, defaults TenantDefaults, logger *slog.Logger) *TenantSettings {
	if defaults.TopK <= 0 {
		defaults.TopK = 5
	}
	if defaults.MaxPremiumPerRequest <= 0 {
		defaults.MaxPremiumPerRequest = 1
	}
	if defaults.SystemPrompt == "" {
		defaults.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantSettings{repo: repo, defaults: defaults, logger: logger}
}

// Resolve returns the effective settings for tenantID. Lookup failures fall back
// to the defaults; a tenant's settings never block a turn.
func (s *TenantSettings) Resolve(ctx context.Context, tenantID string) repository.TenantConfig {
	cfg := repository.TenantConfig{
		TopK:                 s.defaults.TopK,
		MaxPremiumPerRequest: s.defaults.MaxPremiumPerRequest,
		SystemPrompt:         s.defaults.SystemPrompt,
	}
	if s.repo == nil || tenantID == "" {
		return cfg
	}
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return cfg
	}

	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("tenant settings lookup failed, using defaults", "tenant_id", tenantID, "error", err)
		}
		return cfg
	}

	if tenant.Config.TopK > 0 {
		cfg.TopK = tenant.Config.TopK
	}
	if tenant.Config.MaxPremiumPerRequest > 0 {
		cfg.MaxPremiumPerRequest = tenant.Config.MaxPremiumPerRequest
	}
	if tenant.Config.SystemPrompt != "" {
		cfg.SystemPrompt = tenant.Config.SystemPrompt
	}
	return cfg
}

package store

import (
	"context"
)

// TenantConfig carries the per-tenant knobs for the learning loop.
type TenantConfig struct {
	TenantID             int64
	AutoLearnEnabled     bool
	MaxKeywordsPerIntent int
	InitialKeywordWeight float64
	UpdatedTs            int64
}

// GetTenantConfig returns the tenant's config, or the supplied defaults
// when the tenant has none stored.
func (s *Store) GetTenantConfig(ctx context.Context, tenantID int64, defaults TenantConfig) (*TenantConfig, error) {
	cfg, err := s.driver.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		defaults.TenantID = tenantID
		return &defaults, nil
	}
	if cfg.MaxKeywordsPerIntent <= 0 {
		cfg.MaxKeywordsPerIntent = defaults.MaxKeywordsPerIntent
	}
	if cfg.InitialKeywordWeight <= 0 {
		cfg.InitialKeywordWeight = defaults.InitialKeywordWeight
	}
	return cfg, nil
}

// UpsertTenantConfig stores the tenant's config.
func (s *Store) UpsertTenantConfig(ctx context.Context, upsert *TenantConfig) (*TenantConfig, error) {
	return s.driver.UpsertTenantConfig(ctx, upsert)
}

package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// IntentDefinition model related methods.
	CreateIntentDefinition(ctx context.Context, create *IntentDefinition) (*IntentDefinition, error)
	ListIntentDefinitions(ctx context.Context, find *FindIntentDefinition) ([]*IntentDefinition, error)
	UpdateIntentKeywords(ctx context.Context, update *UpdateIntentKeywords) error
	DeleteIntentDefinition(ctx context.Context, id int32) error

	// MatchRecord model related methods.
	CreateMatchRecord(ctx context.Context, create *MatchRecord) (*MatchRecord, error)
	ListMatchRecords(ctx context.Context, find *FindMatchRecord) ([]*MatchRecord, error)
	ConfirmMatchRecord(ctx context.Context, id int64) error

	// LearnedExpression model related methods.
	UpsertLearnedExpression(ctx context.Context, upsert *LearnedExpression) (*LearnedExpression, error)
	ListLearnedExpressions(ctx context.Context, find *FindLearnedExpression) ([]*LearnedExpression, error)
	SearchLearnedExpressionsByVector(ctx context.Context, tenantID int64, vector []float32, limit int) ([]*LearnedExpressionWithScore, error)

	// KeywordEffectiveness model related methods.
	UpsertKeywordEffectiveness(ctx context.Context, upsert *KeywordEffectivenessRecord) (*KeywordEffectivenessRecord, error)
	ListKeywordEffectiveness(ctx context.Context, find *FindKeywordEffectiveness) ([]*KeywordEffectivenessRecord, error)

	// TenantConfig model related methods.
	GetTenantConfig(ctx context.Context, tenantID int64) (*TenantConfig, error)
	UpsertTenantConfig(ctx context.Context, upsert *TenantConfig) (*TenantConfig, error)
}

// CreateIntentDefinition creates an intent definition.
func (s *Store) CreateIntentDefinition(ctx context.Context, create *IntentDefinition) (*IntentDefinition, error) {
	def, err := s.driver.CreateIntentDefinition(ctx, create)
	if err != nil {
		return nil, err
	}
	s.InvalidateIntentLists()
	return def, nil
}

// DeleteIntentDefinition deletes an intent definition.
func (s *Store) DeleteIntentDefinition(ctx context.Context, id int32) error {
	if err := s.driver.DeleteIntentDefinition(ctx, id); err != nil {
		return err
	}
	s.InvalidateIntentLists()
	return nil
}

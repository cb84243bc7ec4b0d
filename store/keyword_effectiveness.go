package store

import (
	"context"
	"time"
)

// KeywordEffectivenessRecord tracks provenance and an effectiveness weight
// for each (tenant, intent, keyword). The weight lets a pruning job decide
// which auto-learned keywords to drop once a cap is reached, while leaving
// manually curated terms alone.
type KeywordEffectivenessRecord struct {
	ID         int64
	TenantID   int64
	IntentCode string
	Keyword    string
	Source     KeywordSource
	Weight     float64
	CreatedTs  int64
	UpdatedTs  int64
}

// FindKeywordEffectiveness is the find condition for effectiveness records.
type FindKeywordEffectiveness struct {
	TenantID   *int64
	IntentCode *string
	Source     *KeywordSource
	Limit      int
}

// UpsertKeywordEffectiveness inserts or refreshes one effectiveness record.
func (s *Store) UpsertKeywordEffectiveness(ctx context.Context, upsert *KeywordEffectivenessRecord) (*KeywordEffectivenessRecord, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now
	return s.driver.UpsertKeywordEffectiveness(ctx, upsert)
}

// ListKeywordEffectiveness lists effectiveness records.
func (s *Store) ListKeywordEffectiveness(ctx context.Context, find *FindKeywordEffectiveness) ([]*KeywordEffectivenessRecord, error) {
	return s.driver.ListKeywordEffectiveness(ctx, find)
}

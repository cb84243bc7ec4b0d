package store

import (
	"context"
	"strings"
)

// SensitivityLevel marks how much caution an intent's execution requires.
type SensitivityLevel string

const (
	SensitivityNormal   SensitivityLevel = "NORMAL"
	SensitivityHigh     SensitivityLevel = "HIGH"
	SensitivityCritical SensitivityLevel = "CRITICAL"
)

// KeywordSource records where a keyword came from.
type KeywordSource string

const (
	KeywordSourceManual          KeywordSource = "MANUAL"
	KeywordSourceAutoLearned     KeywordSource = "AUTO_LEARNED"
	KeywordSourceFeedbackLearned KeywordSource = "FEEDBACK_LEARNED"
)

// IntentDefinition is the unit of classification. TenantID 0 means the
// definition is global and visible to every tenant; a tenant-scoped
// definition with the same code shadows the global one.
type IntentDefinition struct {
	ID          int32
	TenantID    int64
	Code        string
	Name        string
	Category    string
	Description string
	// Pattern is an optional regex evaluated with contains semantics.
	Pattern string
	// Keywords is the only field mutated by the learning loop.
	Keywords      []string
	Priority      int
	RequiredRoles []string
	Sensitivity   SensitivityLevel
	QuotaCost     int
	CacheTTLSec   int
	Active        bool
	CreatedTs     int64
	UpdatedTs     int64
}

// HasKeyword reports whether the definition already carries the keyword,
// case-insensitively.
func (d *IntentDefinition) HasKeyword(keyword string) bool {
	lower := strings.ToLower(keyword)
	for _, kw := range d.Keywords {
		if strings.ToLower(kw) == lower {
			return true
		}
	}
	return false
}

// EmbeddingText returns the text embedded to build the intent's vector:
// description plus keywords joined.
func (d *IntentDefinition) EmbeddingText() string {
	parts := make([]string, 0, 2)
	if d.Description != "" {
		parts = append(parts, d.Description)
	} else {
		parts = append(parts, d.Name)
	}
	if len(d.Keywords) > 0 {
		parts = append(parts, strings.Join(d.Keywords, " "))
	}
	return strings.Join(parts, " ")
}

// FindIntentDefinition is the find condition for intent definitions.
type FindIntentDefinition struct {
	ID       *int32
	TenantID *int64
	Code     *string
	Category *string
	Active   *bool
	// IncludeGlobal widens a tenant-scoped find to also return global
	// definitions (tenant_id = 0).
	IncludeGlobal bool
}

// UpdateIntentKeywords replaces the keyword list of one definition.
type UpdateIntentKeywords struct {
	ID       int32
	Keywords []string
}

const intentListCacheKeyPrefix = "intents:"

// ListIntentDefinitions lists definitions, cached per tenant scope.
func (s *Store) ListIntentDefinitions(ctx context.Context, find *FindIntentDefinition) ([]*IntentDefinition, error) {
	return s.driver.ListIntentDefinitions(ctx, find)
}

// ListActiveIntents returns the effective intent set for a tenant: global
// definitions plus tenant definitions, with tenant entries shadowing global
// entries of the same code. Results are served from the intent list cache.
func (s *Store) ListActiveIntents(ctx context.Context, tenantID int64) ([]*IntentDefinition, error) {
	cacheKey := intentListCacheKey(tenantID)
	if cached, ok := s.intentListCache.Get(ctx, cacheKey); ok {
		if list, ok := cached.([]*IntentDefinition); ok {
			return list, nil
		}
	}

	active := true
	list, err := s.driver.ListIntentDefinitions(ctx, &FindIntentDefinition{
		TenantID:      &tenantID,
		Active:        &active,
		IncludeGlobal: true,
	})
	if err != nil {
		return nil, err
	}

	// Tenant-scoped definitions shadow global ones with the same code.
	byCode := make(map[string]*IntentDefinition, len(list))
	for _, def := range list {
		existing, ok := byCode[def.Code]
		if !ok || (existing.TenantID == 0 && def.TenantID != 0) {
			byCode[def.Code] = def
		}
	}
	effective := make([]*IntentDefinition, 0, len(byCode))
	for _, def := range list {
		if byCode[def.Code] == def {
			effective = append(effective, def)
		}
	}

	s.intentListCache.Set(ctx, cacheKey, effective)
	return effective, nil
}

// UpdateIntentKeywords persists a new keyword list and invalidates every
// cached intent list so matcher runs see the update immediately.
func (s *Store) UpdateIntentKeywords(ctx context.Context, update *UpdateIntentKeywords) error {
	if err := s.driver.UpdateIntentKeywords(ctx, update); err != nil {
		return err
	}
	s.InvalidateIntentLists()
	return nil
}

// InvalidateIntentLists drops all cached intent lists.
func (s *Store) InvalidateIntentLists() {
	s.intentListCache.Flush()
}

func intentListCacheKey(tenantID int64) string {
	return intentListCacheKeyPrefix + i64str(tenantID)
}

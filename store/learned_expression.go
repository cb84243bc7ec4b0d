package store

import (
	"context"
	"time"
)

// LearnedExpression is a (tenant, intent, phrase) triple the system has
// learned to associate with an intent, distinct from curated keywords.
// Rows are created by the learning loop and never hard-deleted; repeated
// matches bump the hit counter and weight.
type LearnedExpression struct {
	ID         int64
	TenantID   int64
	IntentCode string
	Phrase     string
	Weight     float64
	Verified   bool
	HitCount   int
	Embedding  []float32
	CreatedTs  int64
	UpdatedTs  int64
}

// FindLearnedExpression is the find condition for learned expressions.
type FindLearnedExpression struct {
	TenantID   *int64
	IntentCode *string
	Verified   *bool
	Limit      int
}

// LearnedExpressionWithScore pairs an expression with its similarity to a
// query vector.
type LearnedExpressionWithScore struct {
	Expression *LearnedExpression
	Score      float32
}

// UpsertLearnedExpression inserts a learned expression, or on conflict of
// (tenant, intent, phrase) bumps its hit count and weight.
func (s *Store) UpsertLearnedExpression(ctx context.Context, upsert *LearnedExpression) (*LearnedExpression, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now
	return s.driver.UpsertLearnedExpression(ctx, upsert)
}

// ListLearnedExpressions lists learned expressions.
func (s *Store) ListLearnedExpressions(ctx context.Context, find *FindLearnedExpression) ([]*LearnedExpression, error) {
	return s.driver.ListLearnedExpressions(ctx, find)
}

// SearchLearnedExpressionsByVector returns the tenant's expressions most
// similar to the query vector, highest similarity first. The postgres
// driver runs this inside the database via pgvector; the sqlite driver
// scans in process.
func (s *Store) SearchLearnedExpressionsByVector(ctx context.Context, tenantID int64, vector []float32, limit int) ([]*LearnedExpressionWithScore, error) {
	return s.driver.SearchLearnedExpressionsByVector(ctx, tenantID, vector, limit)
}

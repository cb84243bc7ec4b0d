package store

import (
	"context"
	"time"
)

// MatchMethod identifies which pipeline layer produced a resolution.
type MatchMethod string

const (
	MatchMethodRule    MatchMethod = "rule"
	MatchMethodVector  MatchMethod = "vector"
	MatchMethodLLM     MatchMethod = "llm"
	MatchMethodAgentic MatchMethod = "agentic"
)

// MatchRecord is the durable, append-only log of one actual resolution.
// It is the source of truth for the keyword-learning feedback loop and for
// building the few-shot candidate pool. Rows are never updated except to
// set the user-confirmed flag after the fact.
type MatchRecord struct {
	ID            int64
	TenantID      int64
	UserInput     string
	IntentCode    string
	Confidence    float64
	Method        MatchMethod
	UserConfirmed bool
	CreatedTs     int64
}

// FindMatchRecord is the find condition for match records.
type FindMatchRecord struct {
	TenantID      *int64
	IntentCode    *string
	UserConfirmed *bool
	CreatedAfter  *int64
	Limit         int
}

// CreateMatchRecord appends one resolution outcome.
func (s *Store) CreateMatchRecord(ctx context.Context, create *MatchRecord) (*MatchRecord, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateMatchRecord(ctx, create)
}

// ListMatchRecords lists match records, newest first.
func (s *Store) ListMatchRecords(ctx context.Context, find *FindMatchRecord) ([]*MatchRecord, error) {
	return s.driver.ListMatchRecords(ctx, find)
}

// ConfirmMatchRecord sets the user-confirmed flag on one record.
func (s *Store) ConfirmMatchRecord(ctx context.Context, id int64) error {
	return s.driver.ConfirmMatchRecord(ctx, id)
}

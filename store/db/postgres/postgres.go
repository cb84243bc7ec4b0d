package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/store"
)

// PostgreSQL is the reference implementation: intent routing deployments
// with real traffic should run on it, since learned-expression similarity
// search executes inside the database via the pgvector extension.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'intent_definition')`,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

var migrationStmts = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS intent_definition (
		id SERIAL PRIMARY KEY,
		tenant_id BIGINT NOT NULL DEFAULT 0,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		priority INTEGER NOT NULL DEFAULT 0,
		required_roles TEXT NOT NULL DEFAULT '[]',
		sensitivity TEXT NOT NULL DEFAULT 'NORMAL',
		quota_cost INTEGER NOT NULL DEFAULT 1,
		cache_ttl_sec INTEGER NOT NULL DEFAULT 300,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS match_record (
		id BIGSERIAL PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		user_input TEXT NOT NULL,
		intent_code TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		method TEXT NOT NULL,
		user_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_record_tenant_created ON match_record (tenant_id, created_ts)`,
	`CREATE TABLE IF NOT EXISTS learned_expression (
		id BIGSERIAL PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		intent_code TEXT NOT NULL,
		phrase TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		hit_count INTEGER NOT NULL DEFAULT 1,
		embedding vector(1024),
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, intent_code, phrase)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_learned_expression_embedding ON learned_expression
		USING hnsw (embedding vector_cosine_ops)`,
	`CREATE TABLE IF NOT EXISTS keyword_effectiveness (
		id BIGSERIAL PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		intent_code TEXT NOT NULL,
		keyword TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'MANUAL',
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, intent_code, keyword)
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_config (
		tenant_id BIGINT PRIMARY KEY,
		auto_learn_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		max_keywords_per_intent INTEGER NOT NULL DEFAULT 30,
		initial_keyword_weight DOUBLE PRECISION NOT NULL DEFAULT 0.6,
		updated_ts BIGINT NOT NULL
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run migration")
		}
	}
	return nil
}

// placeholder returns the n-th positional placeholder for PostgreSQL.
func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// placeholders returns n positional placeholders for PostgreSQL.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}

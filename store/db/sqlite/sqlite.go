package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hanbai/mescopilot/internal/profile"
	"github.com/hanbai/mescopilot/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database for the given profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// busy_timeout avoids SQLITE_BUSY under concurrent request handling.
	dsn := profile.DSN + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// IsInitialized checks whether the schema has been created.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'intent_definition'`,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var migrationStmts = []string{
	`CREATE TABLE IF NOT EXISTS intent_definition (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL DEFAULT 0,
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
		active INTEGER NOT NULL DEFAULT 1,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS match_record (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		user_input TEXT NOT NULL,
		intent_code TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		method TEXT NOT NULL,
		user_confirmed INTEGER NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_record_tenant_created ON match_record (tenant_id, created_ts)`,
	`CREATE TABLE IF NOT EXISTS learned_expression (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		intent_code TEXT NOT NULL,
		phrase TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		hit_count INTEGER NOT NULL DEFAULT 1,
		embedding TEXT NOT NULL DEFAULT '[]',
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, intent_code, phrase)
	)`,
	`CREATE TABLE IF NOT EXISTS keyword_effectiveness (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		intent_code TEXT NOT NULL,
		keyword TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'MANUAL',
		weight REAL NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE(tenant_id, intent_code, keyword)
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_config (
		tenant_id INTEGER PRIMARY KEY,
		auto_learn_enabled INTEGER NOT NULL DEFAULT 1,
		max_keywords_per_intent INTEGER NOT NULL DEFAULT 30,
		initial_keyword_weight REAL NOT NULL DEFAULT 0.6,
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

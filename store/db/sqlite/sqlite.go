package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/prodtalk/prodtalk/internal/profile"
	"github.com/prodtalk/prodtalk/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the metadata database. It holds conversation threads/turns and
// the admin-owned extraction metadata; the production data itself lives in a
// separate read-only database (see store/proddb).
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode with a busy timeout avoids locking issues; a single
	// connection is optimal for SQLite under WAL.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

var migrationDDL = []string{
	`CREATE TABLE IF NOT EXISTS query_thread (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		creator_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		row_status TEXT NOT NULL DEFAULT 'NORMAL',
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_thread_creator_id ON query_thread (creator_id)`,
	`CREATE TABLE IF NOT EXISTS query_turn (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		normalized_text TEXT NOT NULL DEFAULT '',
		generated_sql TEXT NOT NULL DEFAULT '',
		result_summary TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_turn_thread_id ON query_turn (thread_id)`,
	`CREATE TABLE IF NOT EXISTS filter_rule (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		field_name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		field_type TEXT NOT NULL DEFAULT 'string',
		extraction_pattern TEXT NOT NULL DEFAULT '',
		extraction_keywords TEXT NOT NULL DEFAULT '[]',
		value_mapping TEXT NOT NULL DEFAULT '{}',
		valid_values TEXT NOT NULL DEFAULT '[]',
		validation_type TEXT NOT NULL DEFAULT 'none',
		is_optional INTEGER NOT NULL DEFAULT 1,
		multiple_allowed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS term_mapping (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_expression TEXT NOT NULL,
		standard_term TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schema_table (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		columns TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS reference_lookup (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL
	)`,
}

// Migrate creates the schema when missing. Turns are append-only so there is
// no destructive migration path here.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationDDL {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run migration statement")
		}
	}
	return nil
}

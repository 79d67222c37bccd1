package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/edupath/beacon/internal/profile"
	"github.com/edupath/beacon/store"
)

// SQLite is the development and test driver. There is no pgvector
// equivalent, so vectors are persisted as JSON text and similarity is
// computed in Go over a full table scan. Fine for test catalogs, not for
// production; use PostgreSQL there.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite-backed driver.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// JSON-vector scans are in-process; a single connection avoids
	// SQLITE_BUSY churn under the cooperative task model.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{
		db:      db,
		profile: profile,
	}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS opportunity (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			requirements TEXT NOT NULL DEFAULT '',
			benefits TEXT NOT NULL DEFAULT '',
			deadline_ts INTEGER,
			created_ts INTEGER NOT NULL DEFAULT 0,
			updated_ts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS opportunity_embedding (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			opportunity_id TEXT NOT NULL UNIQUE,
			embedding TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			deadline_ts INTEGER,
			updated_ts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_preference (
			user_id TEXT PRIMARY KEY,
			embedding TEXT,
			source_text TEXT NOT NULL DEFAULT '',
			category_weights TEXT NOT NULL DEFAULT '{}',
			events_since_refresh INTEGER NOT NULL DEFAULT 0,
			updated_ts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_event (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			opportunity_id TEXT NOT NULL,
			signal TEXT NOT NULL,
			created_ts INTEGER NOT NULL DEFAULT 0,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			similarity_threshold REAL NOT NULL,
			helpful_ratio REAL NOT NULL,
			updated_ts INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

// placeholder returns a placeholder for SQLite (uses ?).
func placeholder(int) string {
	return "?"
}

// placeholders returns n comma-joined placeholders.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edupath/beacon/internal/profile"
	"github.com/edupath/beacon/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL-backed driver. pgvector must be installed; the
// Migrate call creates the extension and all tables.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

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

// Migrate creates the schema. Statements are idempotent so repeated startups
// are safe.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS opportunity (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			requirements TEXT NOT NULL DEFAULT '',
			benefits TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ,
			created_ts BIGINT NOT NULL DEFAULT 0,
			updated_ts BIGINT NOT NULL DEFAULT 0
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS opportunity_embedding (
			id BIGSERIAL PRIMARY KEY,
			opportunity_id TEXT NOT NULL UNIQUE,
			embedding vector(%d) NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ,
			updated_ts BIGINT NOT NULL DEFAULT 0
		)`, d.embeddingDim()),
		`CREATE TABLE IF NOT EXISTS user_preference (
			user_id TEXT PRIMARY KEY,
			embedding TEXT,
			source_text TEXT NOT NULL DEFAULT '',
			category_weights TEXT NOT NULL DEFAULT '{}',
			events_since_refresh INTEGER NOT NULL DEFAULT 0,
			updated_ts BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_event (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			opportunity_id TEXT NOT NULL,
			signal TEXT NOT NULL,
			created_ts BIGINT NOT NULL DEFAULT 0,
			processed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_event_unprocessed
			ON feedback_event (created_ts) WHERE processed = FALSE`,
		`CREATE TABLE IF NOT EXISTS recommendation_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			similarity_threshold DOUBLE PRECISION NOT NULL,
			helpful_ratio DOUBLE PRECISION NOT NULL,
			updated_ts BIGINT NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

func (d *DB) embeddingDim() int {
	if d.profile != nil && d.profile.EmbeddingDim > 0 {
		return d.profile.EmbeddingDim
	}
	return 1024
}

// placeholder returns the n-th PostgreSQL placeholder.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n comma-joined placeholders starting at $1.
func placeholders(n int) string {
	list := make([]string, n)
	for i := 0; i < n; i++ {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// GetUserPreference gets a user's preference record. Returns nil when absent.
func (d *DB) GetUserPreference(ctx context.Context, userID string) (*store.UserPreference, error) {
	query := `
		SELECT user_id, embedding, source_text, category_weights, events_since_refresh, updated_ts
		FROM user_preference
		WHERE user_id = ?
	`

	var preference store.UserPreference
	var embeddingJSON sql.NullString
	var weightsJSON string
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&preference.UserID,
		&embeddingJSON,
		&preference.SourceText,
		&weightsJSON,
		&preference.EventsSinceRefresh,
		&preference.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user preference")
	}

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &preference.Embedding); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal preference embedding")
		}
	}
	if err := json.Unmarshal([]byte(weightsJSON), &preference.CategoryWeights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal category weights")
	}

	return &preference, nil
}

// UpsertUserPreference overwrites a user's preference record.
func (d *DB) UpsertUserPreference(ctx context.Context, upsert *store.UserPreference) (*store.UserPreference, error) {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}
	if upsert.CategoryWeights == nil {
		upsert.CategoryWeights = map[string]float64{}
	}

	var embeddingJSON sql.NullString
	if upsert.Embedding != nil {
		raw, err := json.Marshal(upsert.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal preference embedding")
		}
		embeddingJSON = sql.NullString{String: string(raw), Valid: true}
	}
	weightsJSON, err := json.Marshal(upsert.CategoryWeights)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal category weights")
	}

	stmt := `
		INSERT INTO user_preference
			(user_id, embedding, source_text, category_weights, events_since_refresh, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (user_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			source_text = EXCLUDED.source_text,
			category_weights = EXCLUDED.category_weights,
			events_since_refresh = EXCLUDED.events_since_refresh,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID,
		embeddingJSON,
		upsert.SourceText,
		string(weightsJSON),
		upsert.EventsSinceRefresh,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user preference")
	}

	return upsert, nil
}

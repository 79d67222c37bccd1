package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// GetRecommendationConfig gets the singleton config row. Returns nil when no
// feedback run has stored one yet.
func (d *DB) GetRecommendationConfig(ctx context.Context) (*store.RecommendationConfig, error) {
	query := `
		SELECT similarity_threshold, helpful_ratio, updated_ts
		FROM recommendation_config
		WHERE id = 1
	`
	var config store.RecommendationConfig
	err := d.db.QueryRowContext(ctx, query).Scan(
		&config.SimilarityThreshold,
		&config.HelpfulRatio,
		&config.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recommendation config")
	}
	return &config, nil
}

// UpsertRecommendationConfig overwrites the singleton config row.
func (d *DB) UpsertRecommendationConfig(ctx context.Context, upsert *store.RecommendationConfig) (*store.RecommendationConfig, error) {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO recommendation_config (id, similarity_threshold, helpful_ratio, updated_ts)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			similarity_threshold = EXCLUDED.similarity_threshold,
			helpful_ratio = EXCLUDED.helpful_ratio,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.SimilarityThreshold,
		upsert.HelpfulRatio,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert recommendation config")
	}

	return upsert, nil
}

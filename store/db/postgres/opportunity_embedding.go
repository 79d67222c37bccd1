package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// UpsertOpportunityEmbedding inserts or updates an item embedding.
// Last writer wins on conflict.
func (d *DB) UpsertOpportunityEmbedding(ctx context.Context, embedding *store.OpportunityEmbedding) (*store.OpportunityEmbedding, error) {
	if embedding.UpdatedTs == 0 {
		embedding.UpdatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO opportunity_embedding
			(opportunity_id, embedding, model, content_hash, title, category, provider, deadline, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (opportunity_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			content_hash = EXCLUDED.content_hash,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			provider = EXCLUDED.provider,
			deadline = EXCLUDED.deadline,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.OpportunityID,
		vector,
		embedding.Model,
		embedding.ContentHash,
		embedding.Title,
		embedding.Category,
		embedding.Provider,
		nullTime(embedding.Deadline),
		embedding.UpdatedTs,
	).Scan(&embedding.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert opportunity embedding")
	}

	return embedding, nil
}

// ListOpportunityEmbeddings lists embeddings.
func (d *DB) ListOpportunityEmbeddings(ctx context.Context, find *store.FindOpportunityEmbedding) ([]*store.OpportunityEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.OpportunityID != nil {
		where[0] = "opportunity_id = " + placeholder(1)
		args = append(args, *find.OpportunityID)
	}

	query := `
		SELECT id, opportunity_id, embedding, model, content_hash, title, category, provider, deadline, updated_ts
		FROM opportunity_embedding
		WHERE ` + where[0] + `
		ORDER BY updated_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list opportunity embeddings")
	}
	defer rows.Close()

	list := []*store.OpportunityEmbedding{}
	for rows.Next() {
		var embedding store.OpportunityEmbedding
		var vector pgvector.Vector
		var deadline sql.NullTime
		err := rows.Scan(
			&embedding.ID,
			&embedding.OpportunityID,
			&vector,
			&embedding.Model,
			&embedding.ContentHash,
			&embedding.Title,
			&embedding.Category,
			&embedding.Provider,
			&deadline,
			&embedding.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan opportunity embedding")
		}
		embedding.Embedding = vector.Slice()
		if deadline.Valid {
			t := deadline.Time
			embedding.Deadline = &t
		}
		list = append(list, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// ListOpportunityEmbeddingIDs returns every indexed item ID with its stored
// content hash for reconciliation.
func (d *DB) ListOpportunityEmbeddingIDs(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT opportunity_id, content_hash FROM opportunity_embedding`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list opportunity embedding ids")
	}
	defer rows.Close()

	ids := map[string]string{}
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, errors.Wrap(err, "failed to scan opportunity embedding id")
		}
		ids[id] = hash
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// DeleteOpportunityEmbedding deletes an item embedding. No-op when absent.
func (d *DB) DeleteOpportunityEmbedding(ctx context.Context, opportunityID string) error {
	stmt := `DELETE FROM opportunity_embedding WHERE opportunity_id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, opportunityID); err != nil {
		return errors.Wrap(err, "failed to delete opportunity embedding")
	}
	return nil
}

// SearchOpportunitiesByVector performs cosine similarity search with pgvector.
// The <=> operator computes cosine distance, so similarity is 1 - distance.
// Equal scores order by most recent update first.
func (d *DB) SearchOpportunitiesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredOpportunity, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT opportunity_id, 1 - (embedding <=> ` + placeholder(1) + `) AS score,
			title, category, provider, deadline, updated_ts
		FROM opportunity_embedding
		WHERE 1 - (embedding <=> ` + placeholder(2) + `) >= ` + placeholder(3) + `
			AND opportunity_id <> ` + placeholder(4) + `
		ORDER BY score DESC, updated_ts DESC
		LIMIT ` + placeholder(5)

	vector := pgvector.NewVector(opts.Vector)
	rows, err := d.db.QueryContext(ctx, query,
		vector,
		vector,
		opts.MinSimilarity,
		opts.ExcludeID,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []*store.ScoredOpportunity{}
	for rows.Next() {
		var result store.ScoredOpportunity
		var deadline sql.NullTime
		err := rows.Scan(
			&result.OpportunityID,
			&result.Score,
			&result.Title,
			&result.Category,
			&result.Provider,
			&deadline,
			&result.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		if deadline.Valid {
			t := deadline.Time
			result.Deadline = &t
		}
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

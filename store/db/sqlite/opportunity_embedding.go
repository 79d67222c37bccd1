package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/edupath/beacon/store"
)

// UpsertOpportunityEmbedding inserts or updates an item embedding.
func (d *DB) UpsertOpportunityEmbedding(ctx context.Context, embedding *store.OpportunityEmbedding) (*store.OpportunityEmbedding, error) {
	if embedding.UpdatedTs == 0 {
		embedding.UpdatedTs = time.Now().Unix()
	}

	vectorJSON, err := json.Marshal(embedding.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding vector")
	}

	stmt := `
		INSERT INTO opportunity_embedding
			(opportunity_id, embedding, model, content_hash, title, category, provider, deadline_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (opportunity_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			content_hash = EXCLUDED.content_hash,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			provider = EXCLUDED.provider,
			deadline_ts = EXCLUDED.deadline_ts,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id
	`
	err = d.db.QueryRowContext(ctx, stmt,
		embedding.OpportunityID,
		string(vectorJSON),
		embedding.Model,
		embedding.ContentHash,
		embedding.Title,
		embedding.Category,
		embedding.Provider,
		nullDeadlineTs(embedding.Deadline),
		embedding.UpdatedTs,
	).Scan(&embedding.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert opportunity embedding")
	}

	return embedding, nil
}

// ListOpportunityEmbeddings lists embeddings.
func (d *DB) ListOpportunityEmbeddings(ctx context.Context, find *store.FindOpportunityEmbedding) ([]*store.OpportunityEmbedding, error) {
	where, args := "1 = 1", []any{}
	if find.OpportunityID != nil {
		where, args = "opportunity_id = ?", append(args, *find.OpportunityID)
	}

	query := `
		SELECT id, opportunity_id, embedding, model, content_hash, title, category, provider, deadline_ts, updated_ts
		FROM opportunity_embedding
		WHERE ` + where + `
		ORDER BY updated_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list opportunity embeddings")
	}
	defer rows.Close()

	list := []*store.OpportunityEmbedding{}
	for rows.Next() {
		embedding, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// ListOpportunityEmbeddingIDs returns every indexed item ID with its stored
// content hash.
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
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM opportunity_embedding WHERE opportunity_id = ?`, opportunityID); err != nil {
		return errors.Wrap(err, "failed to delete opportunity embedding")
	}
	return nil
}

// SearchOpportunitiesByVector scans all embeddings and scores them in Go.
// Descending similarity, ties broken by most recent update.
func (d *DB) SearchOpportunitiesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredOpportunity, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	embeddings, err := d.ListOpportunityEmbeddings(ctx, &store.FindOpportunityEmbedding{})
	if err != nil {
		return nil, err
	}

	results := make([]*store.ScoredOpportunity, 0, len(embeddings))
	for _, embedding := range embeddings {
		if embedding.OpportunityID == opts.ExcludeID {
			continue
		}
		score := cosineSimilarity(opts.Vector, embedding.Embedding)
		if score < opts.MinSimilarity {
			continue
		}
		results = append(results, &store.ScoredOpportunity{
			OpportunityID: embedding.OpportunityID,
			Score:         score,
			Title:         embedding.Title,
			Category:      embedding.Category,
			Provider:      embedding.Provider,
			Deadline:      embedding.Deadline,
			UpdatedTs:     embedding.UpdatedTs,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UpdatedTs > results[j].UpdatedTs
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func scanEmbedding(rows *sql.Rows) (*store.OpportunityEmbedding, error) {
	var embedding store.OpportunityEmbedding
	var vectorJSON string
	var deadlineTs sql.NullInt64
	err := rows.Scan(
		&embedding.ID,
		&embedding.OpportunityID,
		&vectorJSON,
		&embedding.Model,
		&embedding.ContentHash,
		&embedding.Title,
		&embedding.Category,
		&embedding.Provider,
		&deadlineTs,
		&embedding.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan opportunity embedding")
	}
	if err := json.Unmarshal([]byte(vectorJSON), &embedding.Embedding); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal embedding vector")
	}
	if deadlineTs.Valid {
		t := time.Unix(deadlineTs.Int64, 0)
		embedding.Deadline = &t
	}
	return &embedding, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package store

import (
	"context"
	"time"
)

// OpportunityEmbedding represents the vector embedding of a catalog item,
// together with a metadata snapshot so queries need no catalog join.
type OpportunityEmbedding struct {
	ID            int64
	OpportunityID string
	Embedding     []float32
	Model         string
	// ContentHash is the SHA-256 of the embedding input at embed time.
	ContentHash string
	// Metadata snapshot.
	Title     string
	Category  string
	Provider  string
	Deadline  *time.Time
	UpdatedTs int64
}

// FindOpportunityEmbedding is the find condition for embeddings.
type FindOpportunityEmbedding struct {
	OpportunityID *string
}

// VectorSearchOptions represents the options for nearest-neighbor search.
type VectorSearchOptions struct {
	Vector        []float32
	Limit         int
	MinSimilarity float64
	// ExcludeID drops one item from the result set, used by find-similar.
	ExcludeID string
}

// ScoredOpportunity is a vector search hit: the item reference, its cosine
// similarity, and the metadata snapshot stored alongside the vector.
type ScoredOpportunity struct {
	OpportunityID string
	Score         float64
	Title         string
	Category      string
	Provider      string
	Deadline      *time.Time
	UpdatedTs     int64
}

// UpsertOpportunityEmbedding inserts or updates an embedding. Idempotent,
// last writer wins.
func (s *Store) UpsertOpportunityEmbedding(ctx context.Context, embedding *OpportunityEmbedding) (*OpportunityEmbedding, error) {
	return s.driver.UpsertOpportunityEmbedding(ctx, embedding)
}

// GetOpportunityEmbedding gets the embedding of a specific item.
// Returns nil when absent.
func (s *Store) GetOpportunityEmbedding(ctx context.Context, opportunityID string) (*OpportunityEmbedding, error) {
	list, err := s.driver.ListOpportunityEmbeddings(ctx, &FindOpportunityEmbedding{
		OpportunityID: &opportunityID,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListOpportunityEmbeddings lists embeddings.
func (s *Store) ListOpportunityEmbeddings(ctx context.Context, find *FindOpportunityEmbedding) ([]*OpportunityEmbedding, error) {
	return s.driver.ListOpportunityEmbeddings(ctx, find)
}

// ListOpportunityEmbeddingIDs returns every indexed item ID mapped to its
// stored content hash. Reads the embedding table directly so reconciliation
// sees all records, including ones no query has returned yet.
func (s *Store) ListOpportunityEmbeddingIDs(ctx context.Context) (map[string]string, error) {
	return s.driver.ListOpportunityEmbeddingIDs(ctx)
}

// DeleteOpportunityEmbedding deletes an embedding. No-op when absent.
func (s *Store) DeleteOpportunityEmbedding(ctx context.Context, opportunityID string) error {
	return s.driver.DeleteOpportunityEmbedding(ctx, opportunityID)
}

// SearchOpportunitiesByVector performs cosine similarity search. Results are
// capped at Limit, filtered by MinSimilarity, sorted descending by score with
// ties broken by most recent update.
func (s *Store) SearchOpportunitiesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*ScoredOpportunity, error) {
	return s.driver.SearchOpportunitiesByVector(ctx, opts)
}

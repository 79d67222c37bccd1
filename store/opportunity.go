package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Opportunity represents a recommendable catalog item (scholarship, grant,
// program). The catalog is owned and mutated by an external collaborator;
// the core only reads it.
type Opportunity struct {
	ID           string
	Title        string
	Summary      string
	Category     string
	Provider     string
	Location     string
	Requirements string
	Benefits     string
	Deadline     *time.Time
	CreatedTs    int64
	UpdatedTs    int64
}

// FindOpportunity is the find condition for catalog items.
// Results are always ordered by created_ts descending.
type FindOpportunity struct {
	ID       *string
	Category *string
	Limit    *int
}

// EmbeddingText builds the embedding input for the item: the free-text
// fields joined in a stable order, empty fields skipped. An item whose
// resulting text is empty cannot be embedded.
func (o *Opportunity) EmbeddingText() string {
	parts := make([]string, 0, 7)
	for _, field := range []string{
		o.Title, o.Summary, o.Category, o.Provider, o.Location, o.Requirements, o.Benefits,
	} {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentHash returns the SHA-256 of the embedding input. A stored hash that
// differs from the current one means the item was edited in place and must be
// re-embedded.
func (o *Opportunity) ContentHash() string {
	sum := sha256.Sum256([]byte(o.EmbeddingText()))
	return hex.EncodeToString(sum[:])
}

// ListOpportunities lists catalog items.
func (s *Store) ListOpportunities(ctx context.Context, find *FindOpportunity) ([]*Opportunity, error) {
	return s.driver.ListOpportunities(ctx, find)
}

// GetOpportunity gets a single catalog item. Returns nil when absent.
func (s *Store) GetOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	list, err := s.driver.ListOpportunities(ctx, &FindOpportunity{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListRecentOpportunities returns the most recently added catalog items,
// used as the cold-start fallback for recommendations.
func (s *Store) ListRecentOpportunities(ctx context.Context, limit int) ([]*Opportunity, error) {
	return s.driver.ListOpportunities(ctx, &FindOpportunity{Limit: &limit})
}

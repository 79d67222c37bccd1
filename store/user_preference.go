package store

import "context"

// UserPreference represents a user's derived preference vector together with
// the learning state that feeds it. Overwritten on every recompute, never
// appended.
type UserPreference struct {
	UserID string
	// Embedding may be nil when only engagement weights have accumulated and
	// no vector has been derived yet.
	Embedding []float32
	// SourceText is the concatenated profile/interest text the vector was
	// derived from.
	SourceText string
	// CategoryWeights holds the per-category engagement tally maintained by
	// the feedback loop. Stored as JSON.
	CategoryWeights map[string]float64
	// EventsSinceRefresh counts engagement events since the vector was last
	// regenerated.
	EventsSinceRefresh int
	UpdatedTs          int64
}

// GetUserPreference gets a user's preference record. Returns nil when absent.
func (s *Store) GetUserPreference(ctx context.Context, userID string) (*UserPreference, error) {
	return s.driver.GetUserPreference(ctx, userID)
}

// UpsertUserPreference inserts or overwrites a user's preference record.
func (s *Store) UpsertUserPreference(ctx context.Context, upsert *UserPreference) (*UserPreference, error) {
	return s.driver.UpsertUserPreference(ctx, upsert)
}

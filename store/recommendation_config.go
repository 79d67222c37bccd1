package store

import "context"

// RecommendationConfig is the process-wide ranking tunable state. A singleton:
// written only by the feedback loop, read by every recommendation call.
// Persisted so tuning survives restarts; the live copy is published through an
// atomically swapped pointer by the recommendation service.
type RecommendationConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a query hit.
	SimilarityThreshold float64
	// HelpfulRatio is the rolling helpful/total statistic the threshold was
	// derived from.
	HelpfulRatio float64
	UpdatedTs    int64
}

// DefaultRecommendationConfig returns the starting tunables used before any
// feedback has been processed.
func DefaultRecommendationConfig() *RecommendationConfig {
	return &RecommendationConfig{
		SimilarityThreshold: 0.35,
		HelpfulRatio:        0.5,
	}
}

// GetRecommendationConfig gets the persisted config. Returns nil when no
// feedback run has stored one yet.
func (s *Store) GetRecommendationConfig(ctx context.Context) (*RecommendationConfig, error) {
	return s.driver.GetRecommendationConfig(ctx)
}

// UpsertRecommendationConfig overwrites the persisted config.
func (s *Store) UpsertRecommendationConfig(ctx context.Context, upsert *RecommendationConfig) (*RecommendationConfig, error) {
	return s.driver.UpsertRecommendationConfig(ctx, upsert)
}

package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
type Driver interface {
	Close() error

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	// Opportunity catalog (read-only from the core's perspective).
	ListOpportunities(ctx context.Context, find *FindOpportunity) ([]*Opportunity, error)

	// OpportunityEmbedding model related methods.
	UpsertOpportunityEmbedding(ctx context.Context, embedding *OpportunityEmbedding) (*OpportunityEmbedding, error)
	ListOpportunityEmbeddings(ctx context.Context, find *FindOpportunityEmbedding) ([]*OpportunityEmbedding, error)
	ListOpportunityEmbeddingIDs(ctx context.Context) (map[string]string, error)
	DeleteOpportunityEmbedding(ctx context.Context, opportunityID string) error
	SearchOpportunitiesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*ScoredOpportunity, error)

	// UserPreference model related methods.
	GetUserPreference(ctx context.Context, userID string) (*UserPreference, error)
	UpsertUserPreference(ctx context.Context, upsert *UserPreference) (*UserPreference, error)

	// FeedbackEvent model related methods.
	CreateFeedbackEvent(ctx context.Context, create *FeedbackEvent) (*FeedbackEvent, error)
	ListFeedbackEvents(ctx context.Context, find *FindFeedbackEvent) ([]*FeedbackEvent, error)
	MarkFeedbackEventsProcessed(ctx context.Context, ids []int64) error
	CountExplicitFeedback(ctx context.Context, sinceTs int64) (helpful int64, total int64, err error)

	// RecommendationConfig singleton.
	GetRecommendationConfig(ctx context.Context) (*RecommendationConfig, error)
	UpsertRecommendationConfig(ctx context.Context, upsert *RecommendationConfig) (*RecommendationConfig, error)
}

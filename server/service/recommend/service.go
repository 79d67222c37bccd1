// Package recommend serves personalized opportunity rankings backed by the
// vector index.
package recommend

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	berrors "github.com/edupath/beacon/internal/errors"
	"github.com/edupath/beacon/plugin/ai"
	"github.com/edupath/beacon/server/middleware"
	"github.com/edupath/beacon/store"
)

// Store is the subset of the store the service needs. *store.Store satisfies it.
type Store interface {
	GetOpportunity(ctx context.Context, id string) (*store.Opportunity, error)
	ListRecentOpportunities(ctx context.Context, limit int) ([]*store.Opportunity, error)
	GetOpportunityEmbedding(ctx context.Context, opportunityID string) (*store.OpportunityEmbedding, error)
	SearchOpportunitiesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredOpportunity, error)
	GetUserPreference(ctx context.Context, userID string) (*store.UserPreference, error)
	UpsertUserPreference(ctx context.Context, upsert *store.UserPreference) (*store.UserPreference, error)
	GetRecommendationConfig(ctx context.Context) (*store.RecommendationConfig, error)
}

// ProfileSource supplies the coaching platform's view of a user, rendered as
// text suitable for embedding.
type ProfileSource interface {
	ProfileText(ctx context.Context, userID string) (string, error)
}

// RankedList is a scored recommendation response. Degraded marks results that
// came from the recency fallback rather than vector similarity.
type RankedList struct {
	Items    []*store.ScoredOpportunity
	Degraded bool
	Reason   string
}

// fallbackScore marks recency-fallback items so callers cannot mistake them
// for similarity matches.
const fallbackScore = 0.1

// Service is the recommendation engine.
type Service struct {
	store    Store
	embedder ai.EmbeddingService
	profiles ProfileSource
	limiter  *middleware.RateLimiter
	logger   *slog.Logger

	config atomic.Pointer[store.RecommendationConfig]
	derive singleflight.Group
}

// NewService creates a recommendation service. The limiter is optional.
func NewService(st Store, embedder ai.EmbeddingService, profiles ProfileSource, limiter *middleware.RateLimiter) *Service {
	s := &Service{
		store:    st,
		embedder: embedder,
		profiles: profiles,
		limiter:  limiter,
		logger:   slog.Default(),
	}
	s.config.Store(store.DefaultRecommendationConfig())
	return s
}

// SetLogger sets a custom logger.
func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// LoadConfig pulls the persisted tuning config into memory. Missing row keeps
// the defaults.
func (s *Service) LoadConfig(ctx context.Context) error {
	config, err := s.store.GetRecommendationConfig(ctx)
	if err != nil {
		return err
	}
	if config != nil {
		s.config.Store(config)
	}
	return nil
}

// PublishConfig swaps in a new tuning config. Queries already in flight keep
// the snapshot they started with.
func (s *Service) PublishConfig(config *store.RecommendationConfig) {
	s.config.Store(config)
	s.logger.Info("recommendation config published",
		"similarity_threshold", config.SimilarityThreshold,
		"helpful_ratio", config.HelpfulRatio)
}

// Config returns the current tuning config snapshot.
func (s *Service) Config() *store.RecommendationConfig {
	return s.config.Load()
}

// Recommend returns up to k opportunities ranked for the user. A user with no
// usable preference and an empty index gets the recency fallback, flagged
// degraded.
func (s *Service) Recommend(ctx context.Context, userID string, k int) (*RankedList, error) {
	if userID == "" {
		return nil, berrors.New(berrors.CodeInvalidArgument, "user id is required")
	}
	if k <= 0 {
		k = 10
	}
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return nil, berrors.RateLimited("recommendation rate exceeded for user")
	}

	vector, err := s.preferenceVector(ctx, userID)
	if err != nil {
		s.logger.Warn("preference unavailable, falling back to recent items",
			"user_id", userID, "error", err)
		return s.recentFallback(ctx, k, "preference embedding unavailable")
	}

	results, err := s.store.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector:        vector,
		Limit:         k,
		MinSimilarity: s.config.Load().SimilarityThreshold,
	})
	if err != nil {
		return nil, berrors.StoreUnavailable("vector search failed", err)
	}
	if len(results) == 0 {
		return s.recentFallback(ctx, k, "no items above similarity threshold")
	}
	return &RankedList{Items: results}, nil
}

// FindSimilar returns up to k opportunities similar to the given one,
// excluding the item itself. Unknown ID returns NotFound.
func (s *Service) FindSimilar(ctx context.Context, opportunityID string, k int) (*RankedList, error) {
	if k <= 0 {
		k = 10
	}

	opportunity, err := s.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to get opportunity", err)
	}
	if opportunity == nil {
		return nil, berrors.NotFound("opportunity", opportunityID)
	}

	// The stored embedding saves a provider call when the item is already
	// indexed.
	var vector []float32
	embedding, err := s.store.GetOpportunityEmbedding(ctx, opportunityID)
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to get opportunity embedding", err)
	}
	if embedding != nil {
		vector = embedding.Embedding
	} else {
		vector, err = s.embedder.Embed(ctx, opportunity.EmbeddingText())
		if err != nil {
			return nil, err
		}
	}

	results, err := s.store.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector:        vector,
		Limit:         k,
		MinSimilarity: s.config.Load().SimilarityThreshold,
		ExcludeID:     opportunityID,
	})
	if err != nil {
		return nil, berrors.StoreUnavailable("vector search failed", err)
	}
	return &RankedList{Items: results}, nil
}

// Search ranks opportunities against free text. A non-positive threshold
// uses the current config threshold.
func (s *Service) Search(ctx context.Context, text string, k int, threshold float64) (*RankedList, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, berrors.New(berrors.CodeInvalidArgument, "search text is required")
	}
	if k <= 0 {
		k = 10
	}
	if threshold <= 0 {
		threshold = s.config.Load().SimilarityThreshold
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	results, err := s.store.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector:        vector,
		Limit:         k,
		MinSimilarity: threshold,
	})
	if err != nil {
		return nil, berrors.StoreUnavailable("vector search failed", err)
	}
	return &RankedList{Items: results}, nil
}

// RefreshPreference rebuilds a user's preference embedding, blending the
// profile text with their highest-weighted categories. Used by the learning
// loop after enough engagement events accumulate.
func (s *Service) RefreshPreference(ctx context.Context, userID string, topCategories []string) error {
	base, err := s.profiles.ProfileText(ctx, userID)
	if err != nil {
		return err
	}

	sourceText := base
	if len(topCategories) > 0 {
		sourceText = base + "\nInterested in: " + strings.Join(topCategories, ", ")
	}
	if strings.TrimSpace(sourceText) == "" {
		return berrors.New(berrors.CodeInvalidArgument, "user profile has no embeddable text")
	}

	vector, err := s.embedder.Embed(ctx, sourceText)
	if err != nil {
		return err
	}

	existing, err := s.store.GetUserPreference(ctx, userID)
	if err != nil {
		return berrors.StoreUnavailable("failed to get user preference", err)
	}
	preference := &store.UserPreference{UserID: userID}
	if existing != nil {
		preference.CategoryWeights = existing.CategoryWeights
	}
	preference.Embedding = vector
	preference.SourceText = sourceText
	preference.EventsSinceRefresh = 0
	preference.UpdatedTs = time.Now().Unix()

	if _, err := s.store.UpsertUserPreference(ctx, preference); err != nil {
		return berrors.StoreUnavailable("failed to upsert user preference", err)
	}
	return nil
}

// preferenceVector returns the user's preference embedding, deriving and
// persisting one on first use. Concurrent first-time callers share a single
// derivation.
func (s *Service) preferenceVector(ctx context.Context, userID string) ([]float32, error) {
	preference, err := s.store.GetUserPreference(ctx, userID)
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to get user preference", err)
	}
	if preference != nil && len(preference.Embedding) > 0 {
		return preference.Embedding, nil
	}

	result, err, _ := s.derive.Do(userID, func() (any, error) {
		if err := s.RefreshPreference(ctx, userID, nil); err != nil {
			return nil, err
		}
		derived, err := s.store.GetUserPreference(ctx, userID)
		if err != nil {
			return nil, berrors.StoreUnavailable("failed to get user preference", err)
		}
		if derived == nil || len(derived.Embedding) == 0 {
			return nil, berrors.New(berrors.CodeEmbeddingUnavailable, "preference derivation produced no embedding")
		}
		return derived.Embedding, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (s *Service) recentFallback(ctx context.Context, k int, reason string) (*RankedList, error) {
	recent, err := s.store.ListRecentOpportunities(ctx, k)
	if err != nil {
		return nil, berrors.StoreUnavailable("recency fallback failed", err)
	}

	items := make([]*store.ScoredOpportunity, 0, len(recent))
	for _, opportunity := range recent {
		items = append(items, &store.ScoredOpportunity{
			OpportunityID: opportunity.ID,
			Score:         fallbackScore,
			Title:         opportunity.Title,
			Category:      opportunity.Category,
			Provider:      opportunity.Provider,
			Deadline:      opportunity.Deadline,
			UpdatedTs:     opportunity.UpdatedTs,
		})
	}
	return &RankedList{Items: items, Degraded: true, Reason: reason}, nil
}

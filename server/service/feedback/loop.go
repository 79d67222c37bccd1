// Package feedback records user reactions to recommendations and periodically
// folds them back into the tuning config and user preferences.
package feedback

import (
	"context"
	"log/slog"
	"sort"
	"time"

	berrors "github.com/edupath/beacon/internal/errors"
	"github.com/edupath/beacon/store"
)

// Store is the subset of the store the loop needs. *store.Store satisfies it.
type Store interface {
	CreateFeedbackEvent(ctx context.Context, create *store.FeedbackEvent) (*store.FeedbackEvent, error)
	ListFeedbackEvents(ctx context.Context, find *store.FindFeedbackEvent) ([]*store.FeedbackEvent, error)
	MarkFeedbackEventsProcessed(ctx context.Context, ids []int64) error
	CountExplicitFeedback(ctx context.Context, sinceTs int64) (int64, int64, error)
	GetOpportunityEmbedding(ctx context.Context, opportunityID string) (*store.OpportunityEmbedding, error)
	GetUserPreference(ctx context.Context, userID string) (*store.UserPreference, error)
	UpsertUserPreference(ctx context.Context, upsert *store.UserPreference) (*store.UserPreference, error)
	UpsertRecommendationConfig(ctx context.Context, upsert *store.RecommendationConfig) (*store.RecommendationConfig, error)
}

// Recommender receives the outputs of a learning pass.
type Recommender interface {
	PublishConfig(config *store.RecommendationConfig)
	RefreshPreference(ctx context.Context, userID string, topCategories []string) error
}

// Params tunes the learning loop.
type Params struct {
	// BatchSize bounds events consumed per pass.
	BatchSize int
	// Window is the trailing period over which the helpful ratio is computed.
	Window time.Duration
	// Floor and Ceil clamp the similarity threshold. Floor keeps a poorly
	// rated system from recommending everything; Ceil keeps a well rated one
	// from recommending nothing.
	Floor float64
	Ceil  float64
	// Scale maps the helpful ratio onto a threshold.
	Scale float64
	// RefreshEvery is the engagement event count that triggers a preference
	// re-embedding for a user.
	RefreshEvery int
	// TopCategories is how many of a user's highest-weighted categories feed
	// the refreshed preference text.
	TopCategories int
}

// DefaultParams returns learning loop defaults.
func DefaultParams() Params {
	return Params{
		BatchSize:     200,
		Window:        7 * 24 * time.Hour,
		Floor:         0.2,
		Ceil:          0.75,
		Scale:         0.9,
		RefreshEvery:  10,
		TopCategories: 3,
	}
}

// Result reports one learning pass.
type Result struct {
	Processed    int
	Ratings      int
	Engagements  int
	HelpfulRatio float64
	Threshold    float64
	Refreshed    []string
}

// Loop is the feedback consumer.
type Loop struct {
	store       Store
	recommender Recommender
	params      Params
	logger      *slog.Logger
}

// NewLoop creates a feedback loop.
func NewLoop(st Store, recommender Recommender, params Params) *Loop {
	if params.BatchSize <= 0 {
		params.BatchSize = 200
	}
	if params.Window <= 0 {
		params.Window = 7 * 24 * time.Hour
	}
	if params.RefreshEvery <= 0 {
		params.RefreshEvery = 10
	}
	if params.TopCategories <= 0 {
		params.TopCategories = 3
	}
	return &Loop{
		store:       st,
		recommender: recommender,
		params:      params,
		logger:      slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (l *Loop) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

// Record appends a feedback event. Invalid signals are rejected; everything
// else is fire-and-forget from the caller's point of view.
func (l *Loop) Record(ctx context.Context, userID, opportunityID string, signal store.FeedbackSignal) error {
	if userID == "" || opportunityID == "" {
		return berrors.New(berrors.CodeInvalidArgument, "user id and opportunity id are required")
	}
	if !signal.Valid() {
		return berrors.Newf(berrors.CodeInvalidArgument, "unknown feedback signal %q", signal)
	}

	_, err := l.store.CreateFeedbackEvent(ctx, &store.FeedbackEvent{
		UserID:        userID,
		OpportunityID: opportunityID,
		Signal:        signal,
	})
	if err != nil {
		return berrors.StoreUnavailable("failed to record feedback", err)
	}
	return nil
}

// ProcessOnce consumes one batch of unprocessed events, updates per-user
// category weights, refreshes preferences that accumulated enough engagement,
// recomputes the similarity threshold from the trailing helpful ratio, and
// acknowledges the batch in one transaction.
//
// Per-user failures are logged and skipped; only a failure to list or
// acknowledge events fails the pass.
func (l *Loop) ProcessOnce(ctx context.Context) (*Result, error) {
	unprocessed := false
	limit := l.params.BatchSize
	events, err := l.store.ListFeedbackEvents(ctx, &store.FindFeedbackEvent{
		Processed: &unprocessed,
		Limit:     &limit,
	})
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to list feedback events", err)
	}

	result := &Result{Processed: len(events)}
	if len(events) == 0 {
		return result, nil
	}

	// Engagement deltas are folded per user so each user's preference row is
	// written once per pass.
	type userDelta struct {
		weights map[string]float64
		events  int
	}
	deltas := map[string]*userDelta{}
	ids := make([]int64, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
		if event.Signal.IsExplicitRating() {
			result.Ratings++
			continue
		}
		result.Engagements++

		delta := deltas[event.UserID]
		if delta == nil {
			delta = &userDelta{weights: map[string]float64{}}
			deltas[event.UserID] = delta
		}
		delta.events++
		category, err := l.eventCategory(ctx, event)
		if err != nil || category == "" {
			continue
		}
		delta.weights[category] += engagementWeight(event.Signal)
	}

	for userID, delta := range deltas {
		if err := l.applyUserDelta(ctx, userID, delta.weights, delta.events, result); err != nil {
			l.logger.Warn("failed to apply feedback for user", "user_id", userID, "error", err)
		}
	}

	// Ack before recomputing the window ratio so the just-consumed ratings
	// count as processed.
	if err := l.store.MarkFeedbackEventsProcessed(ctx, ids); err != nil {
		return nil, berrors.StoreUnavailable("failed to acknowledge feedback events", err)
	}

	if err := l.recomputeThreshold(ctx, result); err != nil {
		l.logger.Warn("failed to recompute similarity threshold", "error", err)
	}

	l.logger.Info("feedback pass finished",
		"processed", result.Processed,
		"ratings", result.Ratings,
		"engagements", result.Engagements,
		"helpful_ratio", result.HelpfulRatio,
		"threshold", result.Threshold,
		"refreshed_users", len(result.Refreshed))
	return result, nil
}

// eventCategory resolves the category an engagement event applies to from the
// index's metadata snapshot. Items no longer indexed contribute no weight.
func (l *Loop) eventCategory(ctx context.Context, event *store.FeedbackEvent) (string, error) {
	embedding, err := l.store.GetOpportunityEmbedding(ctx, event.OpportunityID)
	if err != nil || embedding == nil {
		return "", err
	}
	return embedding.Category, nil
}

func (l *Loop) applyUserDelta(ctx context.Context, userID string, weights map[string]float64, events int, result *Result) error {
	preference, err := l.store.GetUserPreference(ctx, userID)
	if err != nil {
		return err
	}
	if preference == nil {
		preference = &store.UserPreference{UserID: userID, CategoryWeights: map[string]float64{}}
	}
	if preference.CategoryWeights == nil {
		preference.CategoryWeights = map[string]float64{}
	}
	for category, delta := range weights {
		preference.CategoryWeights[category] += delta
	}
	preference.EventsSinceRefresh += events
	preference.UpdatedTs = time.Now().Unix()

	if _, err := l.store.UpsertUserPreference(ctx, preference); err != nil {
		return err
	}

	if preference.EventsSinceRefresh >= l.params.RefreshEvery {
		top := topCategories(preference.CategoryWeights, l.params.TopCategories)
		if err := l.recommender.RefreshPreference(ctx, userID, top); err != nil {
			return err
		}
		result.Refreshed = append(result.Refreshed, userID)
	}
	return nil
}

// recomputeThreshold derives the similarity threshold from the trailing
// helpful ratio and publishes it. No explicit ratings in the window keeps the
// current threshold.
func (l *Loop) recomputeThreshold(ctx context.Context, result *Result) error {
	since := time.Now().Add(-l.params.Window).Unix()
	helpful, total, err := l.store.CountExplicitFeedback(ctx, since)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	ratio := float64(helpful) / float64(total)
	threshold := clamp(ratio*l.params.Scale, l.params.Floor, l.params.Ceil)
	result.HelpfulRatio = ratio
	result.Threshold = threshold

	config := &store.RecommendationConfig{
		SimilarityThreshold: threshold,
		HelpfulRatio:        ratio,
		UpdatedTs:           time.Now().Unix(),
	}
	if _, err := l.store.UpsertRecommendationConfig(ctx, config); err != nil {
		return err
	}
	l.recommender.PublishConfig(config)
	return nil
}

// engagementWeight maps an implicit signal to a category weight delta.
func engagementWeight(signal store.FeedbackSignal) float64 {
	switch signal {
	case store.SignalClicked:
		return 1
	case store.SignalSaved:
		return 2
	case store.SignalIgnored:
		return -1
	default:
		return 0
	}
}

// topCategories returns the n highest-weighted categories with positive
// weight, heaviest first.
func topCategories(weights map[string]float64, n int) []string {
	categories := make([]string, 0, len(weights))
	for category, weight := range weights {
		if weight > 0 {
			categories = append(categories, category)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		if weights[categories[i]] != weights[categories[j]] {
			return weights[categories[i]] > weights[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > n {
		categories = categories[:n]
	}
	return categories
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupath/beacon/internal/profile"
	"github.com/edupath/beacon/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	driver, err := NewDB(&profile.Profile{Mode: "dev", Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	db := driver.(*DB)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedOpportunity(t *testing.T, db *DB, id, title, category string, createdTs int64) {
	t.Helper()
	_, err := db.db.Exec(`
		INSERT INTO opportunity (id, title, summary, category, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, title, "summary of "+title, category, createdTs, createdTs)
	require.NoError(t, err)
}

func seedEmbedding(t *testing.T, db *DB, id string, vector []float32, updatedTs int64) {
	t.Helper()
	_, err := db.UpsertOpportunityEmbedding(context.Background(), &store.OpportunityEmbedding{
		OpportunityID: id,
		Embedding:     vector,
		Model:         "test-model",
		ContentHash:   "hash-" + id,
		Title:         "Title " + id,
		Category:      "stem",
		UpdatedTs:     updatedTs,
	})
	require.NoError(t, err)
}

func TestVectorSearch_RankingContract(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedEmbedding(t, db, "exact", []float32{1, 0, 0}, 100)
	seedEmbedding(t, db, "close", []float32{1, 1, 0}, 100)
	seedEmbedding(t, db, "orthogonal", []float32{0, 1, 0}, 100)

	results, err := db.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector:        []float32{1, 0, 0},
		Limit:         10,
		MinSimilarity: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].OpportunityID)
	assert.Equal(t, "close", results[1].OpportunityID)
	assert.Greater(t, results[0].Score, results[1].Score)
	for _, result := range results {
		assert.GreaterOrEqual(t, result.Score, 0.5)
	}
}

func TestVectorSearch_LimitAndExclude(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedEmbedding(t, db, "a", []float32{1, 0, 0}, 100)
	seedEmbedding(t, db, "b", []float32{1, 0.1, 0}, 100)
	seedEmbedding(t, db, "c", []float32{1, 0.2, 0}, 100)

	results, err := db.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector: []float32{1, 0, 0},
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = db.SearchOpportunitiesByVector(ctx, &store.VectorSearchOptions{
		Vector:    []float32{1, 0, 0},
		Limit:     10,
		ExcludeID: "a",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.NotEqual(t, "a", result.OpportunityID)
	}
}

func TestVectorSearch_TieBreakByRecency(t *testing.T) {
	db := newTestDB(t)

	seedEmbedding(t, db, "older", []float32{1, 0, 0}, 100)
	seedEmbedding(t, db, "newer", []float32{1, 0, 0}, 200)

	results, err := db.SearchOpportunitiesByVector(context.Background(), &store.VectorSearchOptions{
		Vector: []float32{1, 0, 0},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].OpportunityID)
	assert.Equal(t, "older", results[1].OpportunityID)
}

func TestUpsertOpportunityEmbedding_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedEmbedding(t, db, "opp-1", []float32{1, 0, 0}, 100)
	seedEmbedding(t, db, "opp-1", []float32{0, 1, 0}, 200)

	ids, err := db.ListOpportunityEmbeddingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	list, err := db.ListOpportunityEmbeddings(ctx, &store.FindOpportunityEmbedding{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []float32{0, 1, 0}, list[0].Embedding)
	assert.Equal(t, int64(200), list[0].UpdatedTs)
}

func TestDeleteOpportunityEmbedding_NoopWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.DeleteOpportunityEmbedding(context.Background(), "never-existed"))
}

func TestListOpportunities_FiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedOpportunity(t, db, "opp-1", "STEM Scholarship", "stem", 100)
	seedOpportunity(t, db, "opp-2", "Arts Grant", "arts", 200)
	seedOpportunity(t, db, "opp-3", "Robotics Camp", "stem", 300)

	list, err := db.ListOpportunities(ctx, &store.FindOpportunity{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "opp-3", list[0].ID)

	category := "stem"
	list, err = db.ListOpportunities(ctx, &store.FindOpportunity{Category: &category})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	limit := 1
	list, err = db.ListOpportunities(ctx, &store.FindOpportunity{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "opp-3", list[0].ID)
}

func TestFeedbackEvents_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now().Unix()
	for _, signal := range []store.FeedbackSignal{store.SignalHelpful, store.SignalNotHelpful, store.SignalClicked} {
		_, err := db.CreateFeedbackEvent(ctx, &store.FeedbackEvent{
			UserID:        "user-1",
			OpportunityID: "opp-1",
			Signal:        signal,
			CreatedTs:     now,
		})
		require.NoError(t, err)
	}

	unprocessed := false
	events, err := db.ListFeedbackEvents(ctx, &store.FindFeedbackEvent{Processed: &unprocessed})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, store.SignalHelpful, events[0].Signal)

	ids := []int64{events[0].ID, events[1].ID, events[2].ID}
	require.NoError(t, db.MarkFeedbackEventsProcessed(ctx, ids))

	events, err = db.ListFeedbackEvents(ctx, &store.FindFeedbackEvent{Processed: &unprocessed})
	require.NoError(t, err)
	assert.Empty(t, events)

	// Only explicit ratings count; the clicked event is excluded.
	helpful, total, err := db.CountExplicitFeedback(ctx, now-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), helpful)
	assert.Equal(t, int64(2), total)
}

func TestUserPreference_Roundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetUserPreference(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = db.UpsertUserPreference(ctx, &store.UserPreference{
		UserID:             "user-1",
		Embedding:          []float32{0.5, 0.5},
		SourceText:         "robotics and space",
		CategoryWeights:    map[string]float64{"stem": 3, "arts": -1},
		EventsSinceRefresh: 4,
	})
	require.NoError(t, err)

	got, err = db.GetUserPreference(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float32{0.5, 0.5}, got.Embedding)
	assert.Equal(t, "robotics and space", got.SourceText)
	assert.InDelta(t, 3, got.CategoryWeights["stem"], 1e-9)
	assert.Equal(t, 4, got.EventsSinceRefresh)
}

func TestRecommendationConfig_Singleton(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetRecommendationConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = db.UpsertRecommendationConfig(ctx, &store.RecommendationConfig{
		SimilarityThreshold: 0.4,
		HelpfulRatio:        0.6,
	})
	require.NoError(t, err)
	_, err = db.UpsertRecommendationConfig(ctx, &store.RecommendationConfig{
		SimilarityThreshold: 0.5,
		HelpfulRatio:        0.7,
	})
	require.NoError(t, err)

	got, err = db.GetRecommendationConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.5, got.SimilarityThreshold, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

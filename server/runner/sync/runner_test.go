package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/edupath/beacon/internal/errors"
	"github.com/edupath/beacon/store"
)

// fakeStore is an in-memory implementation of the runner's store interface.
type fakeStore struct {
	catalog    []*store.Opportunity
	embeddings map[string]*store.OpportunityEmbedding
	listErr    error
	// upsertHook runs after each upsert, standing in for a reader that
	// queries the index while a sync is in flight.
	upsertHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{embeddings: map[string]*store.OpportunityEmbedding{}}
}

func (f *fakeStore) ListOpportunities(_ context.Context, _ *store.FindOpportunity) ([]*store.Opportunity, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.catalog, nil
}

func (f *fakeStore) ListOpportunityEmbeddingIDs(_ context.Context) (map[string]string, error) {
	ids := map[string]string{}
	for id, embedding := range f.embeddings {
		ids[id] = embedding.ContentHash
	}
	return ids, nil
}

func (f *fakeStore) UpsertOpportunityEmbedding(_ context.Context, embedding *store.OpportunityEmbedding) (*store.OpportunityEmbedding, error) {
	f.embeddings[embedding.OpportunityID] = embedding
	if f.upsertHook != nil {
		f.upsertHook()
	}
	return embedding, nil
}

func (f *fakeStore) DeleteOpportunityEmbedding(_ context.Context, opportunityID string) error {
	delete(f.embeddings, opportunityID)
	return nil
}

// mockEmbedder is a mock embedding service with controllable failures.
type mockEmbedder struct {
	dimensions     int
	batchCallCount atomic.Int32
	embedCallCount atomic.Int32
	batchErr       error
	failTexts      map[string]bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimensions: 8}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCallCount.Add(1)
	if m.failTexts[text] {
		return nil, berrors.ProviderFatal("bad input", nil)
	}
	return make([]float32, m.dimensions), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCallCount.Add(1)
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, m.dimensions)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dimensions }
func (m *mockEmbedder) Name() string    { return "mock" }

func testConfig() Config {
	return Config{BatchSize: 50, BatchInterval: time.Millisecond, Model: "test-model"}
}

func opportunity(id, title string) *store.Opportunity {
	return &store.Opportunity{ID: id, Title: title, Summary: "summary of " + title}
}

func TestSync_CreatesMissingEmbeddings(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		opportunity("opp-2", "Arts Grant"),
	}
	runner := NewRunner(fake, newMockEmbedder(), testConfig())

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Deleted)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
	assert.Len(t, fake.embeddings, 2)
	assert.Equal(t, "test-model", fake.embeddings["opp-1"].Model)
}

func TestSync_IdempotentWhenUnchanged(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		opportunity("opp-2", "Arts Grant"),
	}
	embedder := newMockEmbedder()
	runner := NewRunner(fake, embedder, testConfig())

	_, err := runner.Sync(context.Background())
	require.NoError(t, err)

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, int32(1), embedder.batchCallCount.Load())
}

func TestSync_ReembedsEditedItem(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{opportunity("opp-1", "STEM Scholarship")}
	runner := NewRunner(fake, newMockEmbedder(), testConfig())

	_, err := runner.Sync(context.Background())
	require.NoError(t, err)
	originalHash := fake.embeddings["opp-1"].ContentHash

	// Edit the item in place; same ID, new content.
	fake.catalog[0].Summary = "updated summary"

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.NotEqual(t, originalHash, fake.embeddings["opp-1"].ContentHash)
}

func TestSync_DeletesOrphanedEmbeddings(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		opportunity("opp-2", "Arts Grant"),
	}
	runner := NewRunner(fake, newMockEmbedder(), testConfig())

	_, err := runner.Sync(context.Background())
	require.NoError(t, err)

	// Remove opp-2 from the catalog between runs.
	fake.catalog = fake.catalog[:1]

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Len(t, fake.embeddings, 1)
	assert.Contains(t, fake.embeddings, "opp-1")
}

func TestSync_BatchesLargeCatalogs(t *testing.T) {
	fake := newFakeStore()
	for i := 0; i < 120; i++ {
		fake.catalog = append(fake.catalog, opportunity(fmt.Sprintf("opp-%d", i), fmt.Sprintf("Item %d", i)))
	}
	embedder := newMockEmbedder()
	runner := NewRunner(fake, embedder, testConfig())

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, result.Created)
	assert.Equal(t, int32(3), embedder.batchCallCount.Load())
}

func TestSync_SkipsEmptyContent(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		{ID: "opp-empty"},
	}
	runner := NewRunner(fake, newMockEmbedder(), testConfig())

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.NotContains(t, fake.embeddings, "opp-empty")
}

func TestSync_SalvagesBatchFailurePerItem(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		opportunity("opp-2", "Arts Grant"),
		opportunity("opp-3", "Travel Stipend"),
	}
	embedder := newMockEmbedder()
	embedder.batchErr = berrors.EmbeddingUnavailable("all providers down", nil)
	embedder.failTexts = map[string]bool{fake.catalog[1].EmbeddingText(): true}
	runner := NewRunner(fake, embedder, testConfig())

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "opp-2", result.Errors[0].OpportunityID)
	assert.Equal(t, int32(3), embedder.embedCallCount.Load())
}

// A recommendation query that lands while a sync is in flight may observe a
// partially updated index: items are written per batch, not atomically for the
// whole run. That window is accepted eventual consistency; nothing locks
// readers out during a sync, only the run itself is prevented from overlapping.
func TestSync_PartialIndexVisibleMidRun(t *testing.T) {
	fake := newFakeStore()
	fake.catalog = []*store.Opportunity{
		opportunity("opp-1", "STEM Scholarship"),
		opportunity("opp-2", "Arts Grant"),
		opportunity("opp-3", "Travel Stipend"),
	}
	indexSizes := []int{}
	fake.upsertHook = func() {
		indexSizes = append(indexSizes, len(fake.embeddings))
	}
	config := testConfig()
	config.BatchSize = 1
	runner := NewRunner(fake, newMockEmbedder(), config)

	result, err := runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	// A mid-run reader saw 1 then 2 of 3 items before the run completed.
	assert.Equal(t, []int{1, 2, 3}, indexSizes)
}

func TestSync_CatalogListFailureIsRunLevel(t *testing.T) {
	fake := newFakeStore()
	fake.listErr = fmt.Errorf("connection refused")
	runner := NewRunner(fake, newMockEmbedder(), testConfig())

	_, err := runner.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, berrors.IsCode(err, berrors.CodeStoreUnavailable))
}

// Package sync reconciles the vector index with the opportunity catalog.
// Creates, re-embeds edited items, and deletes orphans; per-item failures are
// collected into the run result instead of aborting the run.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	berrors "github.com/edupath/beacon/internal/errors"
	"github.com/edupath/beacon/plugin/ai"
	"github.com/edupath/beacon/store"
)

// Store is the subset of the store the runner needs. *store.Store satisfies it.
type Store interface {
	ListOpportunities(ctx context.Context, find *store.FindOpportunity) ([]*store.Opportunity, error)
	ListOpportunityEmbeddingIDs(ctx context.Context) (map[string]string, error)
	UpsertOpportunityEmbedding(ctx context.Context, embedding *store.OpportunityEmbedding) (*store.OpportunityEmbedding, error)
	DeleteOpportunityEmbedding(ctx context.Context, opportunityID string) error
}

// ItemError records a single item that could not be synced.
type ItemError struct {
	OpportunityID string
	Reason        string
}

// Result reports one reconciliation run. With no catalog changes between two
// runs, the second reports Created=0, Deleted=0.
type Result struct {
	RunID    string
	Created  int
	Deleted  int
	Skipped  int
	Errors   []ItemError
	Duration time.Duration
}

// Config holds runner tunables.
type Config struct {
	// BatchSize is the number of items embedded per provider call.
	BatchSize int
	// BatchInterval paces provider calls to respect rate limits.
	BatchInterval time.Duration
	// Model is recorded on every embedding for provenance.
	Model string
}

// DefaultConfig returns runner defaults sized for typical provider limits.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		BatchInterval: 2 * time.Second,
		Model:         "text-embedding-3-small",
	}
}

// Runner is the embedding sync engine.
type Runner struct {
	store    Store
	embedder ai.EmbeddingService
	config   Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewRunner creates an embedding sync runner.
func NewRunner(st Store, embedder ai.EmbeddingService, config Config) *Runner {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.BatchInterval <= 0 {
		config.BatchInterval = 2 * time.Second
	}
	return &Runner{
		store:    st,
		embedder: embedder,
		config:   config,
		limiter:  rate.NewLimiter(rate.Every(config.BatchInterval), 1),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (r *Runner) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Sync reconciles the index with the catalog. A concurrent recommendation
// query may observe a partially synced index while this runs; that window is
// an accepted eventual-consistency property, the scheduler only prevents the
// run from overlapping itself.
//
// Only a failure to list the catalog or the index is a run-level error;
// everything else degrades to per-item entries in Result.Errors.
func (r *Runner) Sync(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: shortuuid.New()}

	catalog, err := r.store.ListOpportunities(ctx, &store.FindOpportunity{})
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to list catalog", err)
	}
	indexed, err := r.store.ListOpportunityEmbeddingIDs(ctx)
	if err != nil {
		return nil, berrors.StoreUnavailable("failed to list index ids", err)
	}

	toCreate := make([]*store.Opportunity, 0)
	catalogIDs := make(map[string]struct{}, len(catalog))
	for _, item := range catalog {
		catalogIDs[item.ID] = struct{}{}
		storedHash, ok := indexed[item.ID]
		// Missing from the index, or edited in place since it was embedded:
		// both are modeled as re-creates.
		if !ok || storedHash != item.ContentHash() {
			toCreate = append(toCreate, item)
		}
	}
	toDelete := make([]string, 0)
	for id := range indexed {
		if _, ok := catalogIDs[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}

	r.logger.Info("embedding sync started",
		"run_id", result.RunID,
		"catalog", len(catalog),
		"indexed", len(indexed),
		"to_create", len(toCreate),
		"to_delete", len(toDelete))

	r.processCreates(ctx, toCreate, result)
	r.processDeletes(ctx, toDelete, result)

	result.Duration = time.Since(start)
	r.logger.Info("embedding sync finished",
		"run_id", result.RunID,
		"created", result.Created,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func (r *Runner) processCreates(ctx context.Context, items []*store.Opportunity, result *Result) {
	// Items with no embeddable text are skipped up front so batches stay full.
	embeddable := make([]*store.Opportunity, 0, len(items))
	for _, item := range items {
		if item.EmbeddingText() == "" {
			r.logger.Warn("skipping opportunity with empty embedding input", "opportunity_id", item.ID)
			result.Skipped++
			continue
		}
		embeddable = append(embeddable, item)
	}

	for start := 0; start < len(embeddable); start += r.config.BatchSize {
		select {
		case <-ctx.Done():
			r.recordCancelled(embeddable[start:], result)
			return
		default:
		}

		end := start + r.config.BatchSize
		if end > len(embeddable) {
			end = len(embeddable)
		}
		r.processBatch(ctx, embeddable[start:end], result)
	}
}

func (r *Runner) processBatch(ctx context.Context, batch []*store.Opportunity, result *Result) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.recordCancelled(batch, result)
		return
	}

	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.EmbeddingText()
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.logger.Warn("batch embedding failed, retrying per item",
			"batch_size", len(batch), "error", err)
		r.salvageBatch(ctx, batch, result)
		return
	}

	for i, item := range batch {
		r.upsertItem(ctx, item, vectors[i], result)
	}
}

// salvageBatch retries each item of a failed batch individually so one bad
// input cannot sink its batchmates.
func (r *Runner) salvageBatch(ctx context.Context, batch []*store.Opportunity, result *Result) {
	for _, item := range batch {
		vector, err := r.embedder.Embed(ctx, item.EmbeddingText())
		if err != nil {
			result.Errors = append(result.Errors, ItemError{
				OpportunityID: item.ID,
				Reason:        err.Error(),
			})
			continue
		}
		r.upsertItem(ctx, item, vector, result)
	}
}

func (r *Runner) upsertItem(ctx context.Context, item *store.Opportunity, vector []float32, result *Result) {
	_, err := r.store.UpsertOpportunityEmbedding(ctx, &store.OpportunityEmbedding{
		OpportunityID: item.ID,
		Embedding:     vector,
		Model:         r.config.Model,
		ContentHash:   item.ContentHash(),
		Title:         item.Title,
		Category:      item.Category,
		Provider:      item.Provider,
		Deadline:      item.Deadline,
		UpdatedTs:     time.Now().Unix(),
	})
	if err != nil {
		result.Errors = append(result.Errors, ItemError{
			OpportunityID: item.ID,
			Reason:        err.Error(),
		})
		return
	}
	result.Created++
}

func (r *Runner) processDeletes(ctx context.Context, ids []string, result *Result) {
	for _, id := range ids {
		if err := r.store.DeleteOpportunityEmbedding(ctx, id); err != nil {
			result.Errors = append(result.Errors, ItemError{
				OpportunityID: id,
				Reason:        err.Error(),
			})
			continue
		}
		result.Deleted++
	}
}

func (r *Runner) recordCancelled(remaining []*store.Opportunity, result *Result) {
	for _, item := range remaining {
		result.Errors = append(result.Errors, ItemError{
			OpportunityID: item.ID,
			Reason:        "sync cancelled",
		})
	}
}

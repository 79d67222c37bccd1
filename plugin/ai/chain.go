package ai

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	berrors "github.com/edupath/beacon/internal/errors"
)

// Chain tries embedding providers in priority order. A call fails over to the
// next provider only on transient errors; validation errors surface
// immediately since retrying a caller bug elsewhere cannot help. When every
// provider is exhausted the call fails with EMBEDDING_UNAVAILABLE.
//
// Providers are held as an ordered slice so adding a third or fourth provider
// is a wiring change, not a branching change.
type Chain struct {
	providers []EmbeddingService
	logger    *slog.Logger
}

// NewChain creates a provider chain. All providers must agree on
// dimensionality, otherwise records written by one provider would be
// unqueryable with vectors from another.
func NewChain(providers ...EmbeddingService) (*Chain, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one embedding provider is required")
	}
	dim := providers[0].Dimensions()
	for _, p := range providers[1:] {
		if p.Dimensions() != dim {
			return nil, errors.Errorf("provider %s has dimension %d, want %d",
				p.Name(), p.Dimensions(), dim)
		}
	}
	return &Chain{
		providers: providers,
		logger:    slog.Default(),
	}, nil
}

// SetLogger sets a custom logger.
func (c *Chain) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// Name identifies the chain for logging.
func (c *Chain) Name() string {
	return "chain/" + c.providers[0].Name()
}

// Dimensions returns the shared vector dimension.
func (c *Chain) Dimensions() int {
	return c.providers[0].Dimensions()
}

// Embed generates a vector for a single text.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for multiple texts, preserving order.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for i, provider := range c.providers {
		vectors, err := provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !berrors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if i < len(c.providers)-1 {
			c.logger.Warn("embedding provider failed, falling back",
				"provider", provider.Name(),
				"next", c.providers[i+1].Name(),
				"error", err)
		}
	}
	return nil, berrors.EmbeddingUnavailable("all embedding providers exhausted", lastErr)
}

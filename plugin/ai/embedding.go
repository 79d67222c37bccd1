package ai

import (
	"context"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/pkg/errors"

	berrors "github.com/edupath/beacon/internal/errors"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Name identifies the provider for logging.
	Name() string
}

type embeddingService struct {
	client *openai.Client
	cfg    *EmbeddingConfig
	logger *slog.Logger
}

// NewEmbeddingService creates an EmbeddingService backed by an
// OpenAI-compatible endpoint (OpenAI, SiliconFlow).
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	switch cfg.Provider {
	case "openai", "siliconflow":
		// SiliconFlow is compatible with the OpenAI API.
	default:
		return nil, errors.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &embeddingService{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: slog.Default(),
	}, nil
}

func (s *embeddingService) Name() string {
	return s.cfg.Provider + "/" + s.cfg.Model
}

func (s *embeddingService) Dimensions() int {
	return s.cfg.Dimensions
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for the given texts. Inputs beyond the
// provider batch limit are chunked transparently; each chunk is retried with
// exponential backoff before the error escalates.
func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, berrors.New(berrors.CodeInvalidArgument, "no texts provided for embedding")
	}
	for i, text := range texts {
		if text == "" {
			return nil, berrors.Newf(berrors.CodeInvalidArgument, "empty text at index %d", i)
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for _, chunk := range chunkTexts(texts, s.cfg.BatchLimit) {
		chunkVectors, err := s.embedChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, chunkVectors...)
	}
	return vectors, nil
}

func (s *embeddingService) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			s.logger.Debug("embedding request failed, retrying",
				"provider", s.Name(),
				"attempt", attempt,
				"wait", wait,
				"error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, berrors.ProviderTransient("embedding cancelled", ctx.Err())
			}
		}

		vectors, err := s.doEmbed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !berrors.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *embeddingService) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.cfg.Model),
		Dimensions: s.cfg.Dimensions,
	})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, berrors.Newf(berrors.CodeProviderFatal,
			"provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// classifyProviderError maps a provider failure onto the retryable /
// non-retryable taxonomy. Timeouts, rate limits and 5xx are transient;
// 4xx request errors are caller bugs and must not fail over.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return berrors.ProviderTransient("provider request failed", err)
		default:
			return berrors.ProviderFatal("provider rejected request", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return berrors.ProviderTransient("provider unreachable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return berrors.ProviderTransient("provider call timed out", err)
	}
	return berrors.ProviderTransient("provider request failed", err)
}

// chunkTexts splits texts into chunks of at most limit entries.
func chunkTexts(texts []string, limit int) [][]string {
	if limit <= 0 || len(texts) <= limit {
		return [][]string{texts}
	}
	chunks := make([][]string, 0, (len(texts)+limit-1)/limit)
	for start := 0; start < len(texts); start += limit {
		end := start + limit
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, texts[start:end])
	}
	return chunks
}

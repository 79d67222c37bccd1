package ai

import (
	"time"

	"github.com/pkg/errors"

	"github.com/edupath/beacon/internal/profile"
)

// EmbeddingConfig represents a single embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow
	Model      string // text-embedding-3-small, BAAI/bge-m3
	Dimensions int    // 1024
	APIKey     string
	BaseURL    string

	// BatchLimit is the provider's documented maximum batch size.
	// Larger inputs are chunked transparently.
	BatchLimit int
	// Timeout bounds every provider call.
	Timeout time.Duration
	// MaxRetries is the retry budget per chunk (one retry by default).
	MaxRetries int
}

func (c *EmbeddingConfig) applyDefaults() {
	if c.BatchLimit <= 0 {
		c.BatchLimit = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 1024
	}
}

// Validate validates a provider configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	return nil
}

// ConfigsFromProfile builds the ordered provider configurations from the
// profile: primary first, then the optional fallback.
func ConfigsFromProfile(p *profile.Profile) []*EmbeddingConfig {
	configs := []*EmbeddingConfig{providerConfig(p, p.EmbeddingProvider, p.EmbeddingModel)}
	if p.FallbackProvider != "" && p.FallbackProvider != p.EmbeddingProvider {
		configs = append(configs, providerConfig(p, p.FallbackProvider, p.FallbackModel))
	}
	return configs
}

func providerConfig(p *profile.Profile, provider, model string) *EmbeddingConfig {
	cfg := &EmbeddingConfig{
		Provider:   provider,
		Model:      model,
		Dimensions: p.EmbeddingDim,
	}
	switch provider {
	case "siliconflow":
		cfg.APIKey = p.SiliconFlowAPIKey
		cfg.BaseURL = p.SiliconFlowBaseURL
	case "openai":
		cfg.APIKey = p.OpenAIAPIKey
		cfg.BaseURL = p.OpenAIBaseURL
	}
	return cfg
}

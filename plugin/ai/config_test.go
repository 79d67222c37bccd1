package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupath/beacon/internal/profile"
)

func TestConfigsFromProfile_PrimaryOnly(t *testing.T) {
	p := &profile.Profile{
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingDim:      1024,
		OpenAIAPIKey:      "sk-test",
		OpenAIBaseURL:     "https://api.openai.com/v1",
	}

	configs := ConfigsFromProfile(p)
	require.Len(t, configs, 1)
	assert.Equal(t, "openai", configs[0].Provider)
	assert.Equal(t, "sk-test", configs[0].APIKey)
	assert.Equal(t, 1024, configs[0].Dimensions)
}

func TestConfigsFromProfile_WithFallback(t *testing.T) {
	p := &profile.Profile{
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingDim:      1024,
		OpenAIAPIKey:      "sk-test",
		SiliconFlowAPIKey: "sf-test",
		FallbackProvider:  "siliconflow",
		FallbackModel:     "BAAI/bge-m3",
	}

	configs := ConfigsFromProfile(p)
	require.Len(t, configs, 2)
	assert.Equal(t, "siliconflow", configs[1].Provider)
	assert.Equal(t, "BAAI/bge-m3", configs[1].Model)
	assert.Equal(t, "sf-test", configs[1].APIKey)
}

func TestConfigsFromProfile_IgnoresSelfFallback(t *testing.T) {
	p := &profile.Profile{
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		OpenAIAPIKey:      "sk-test",
		FallbackProvider:  "openai",
	}

	configs := ConfigsFromProfile(p)
	assert.Len(t, configs, 1)
}

func TestNewEmbeddingService_Validation(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingConfig{Provider: "cohere", Model: "embed", APIKey: "key"})
	assert.Error(t, err)

	_, err = NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "embed"})
	assert.Error(t, err)

	service, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "embed", APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "openai/embed", service.Name())
	assert.Equal(t, 1024, service.Dimensions())
}

package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_NormalizesMode(t *testing.T) {
	p := &Profile{Mode: "invalid", Driver: "sqlite"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "demo", p.Mode)
}

func TestValidate_DefaultsDriver(t *testing.T) {
	p := &Profile{Mode: "dev"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "sqlite", p.Driver)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	p := &Profile{Mode: "prod", Driver: "mysql"}
	assert.Error(t, p.Validate())
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	p := &Profile{Mode: "prod", Driver: "postgres"}
	assert.Error(t, p.Validate())

	p.DSN = "postgres://localhost/beacon"
	assert.NoError(t, p.Validate())
}

func TestValidate_DefaultsCadence(t *testing.T) {
	p := &Profile{Mode: "dev", Driver: "sqlite"}
	require.NoError(t, p.Validate())
	assert.Equal(t, time.Hour, p.SyncInterval)
	assert.Equal(t, 6*time.Hour, p.LearnInterval)
	assert.Equal(t, 30*time.Minute, p.StatsInterval)
	assert.Equal(t, 50, p.SyncBatchSize)
}

func TestFromEnv_Defaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()
	assert.Equal(t, "openai", p.EmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", p.EmbeddingModel)
	assert.Equal(t, 1024, p.EmbeddingDim)
	assert.Equal(t, time.Hour, p.SyncInterval)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BEACON_EMBEDDING_PROVIDER", "siliconflow")
	t.Setenv("BEACON_EMBEDDING_DIM", "768")
	t.Setenv("BEACON_SYNC_INTERVAL", "15m")

	p := &Profile{}
	p.FromEnv()
	assert.Equal(t, "siliconflow", p.EmbeddingProvider)
	assert.Equal(t, 768, p.EmbeddingDim)
	assert.Equal(t, 15*time.Minute, p.SyncInterval)
}

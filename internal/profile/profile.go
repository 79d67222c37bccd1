package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the beacon daemon.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where beacon stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the daemon
	Version string

	// Embedding provider configuration.
	EmbeddingProvider  string // BEACON_EMBEDDING_PROVIDER (default: openai)
	EmbeddingModel     string // BEACON_EMBEDDING_MODEL (default: text-embedding-3-small)
	EmbeddingDim       int    // BEACON_EMBEDDING_DIM (default: 1024)
	OpenAIAPIKey       string // BEACON_OPENAI_API_KEY
	OpenAIBaseURL      string // BEACON_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	SiliconFlowAPIKey  string // BEACON_SILICONFLOW_API_KEY
	SiliconFlowBaseURL string // BEACON_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	FallbackProvider   string // BEACON_EMBEDDING_FALLBACK_PROVIDER (empty disables fallback)
	FallbackModel      string // BEACON_EMBEDDING_FALLBACK_MODEL

	// Background task cadence.
	SyncInterval  time.Duration // BEACON_SYNC_INTERVAL (default: 1h)
	LearnInterval time.Duration // BEACON_LEARN_INTERVAL (default: 6h)
	StatsInterval time.Duration // BEACON_STATS_INTERVAL (default: 30m)
	SyncBatchSize int           // BEACON_SYNC_BATCH_SIZE (default: 50)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from BEACON_* environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("BEACON_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("BEACON_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingDim = getIntEnv("BEACON_EMBEDDING_DIM", 1024)
	p.OpenAIAPIKey = os.Getenv("BEACON_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("BEACON_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.SiliconFlowAPIKey = os.Getenv("BEACON_SILICONFLOW_API_KEY")
	p.SiliconFlowBaseURL = getEnvOrDefault("BEACON_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.FallbackProvider = os.Getenv("BEACON_EMBEDDING_FALLBACK_PROVIDER")
	p.FallbackModel = getEnvOrDefault("BEACON_EMBEDDING_FALLBACK_MODEL", "BAAI/bge-m3")

	p.SyncInterval = getDurationEnv("BEACON_SYNC_INTERVAL", time.Hour)
	p.LearnInterval = getDurationEnv("BEACON_LEARN_INTERVAL", 6*time.Hour)
	p.StatsInterval = getDurationEnv("BEACON_STATS_INTERVAL", 30*time.Minute)
	p.SyncBatchSize = getIntEnv("BEACON_SYNC_BATCH_SIZE", 50)
}

// Validate normalizes and validates the profile.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	if p.SyncBatchSize <= 0 {
		p.SyncBatchSize = 50
	}
	if p.SyncInterval <= 0 {
		p.SyncInterval = time.Hour
	}
	if p.LearnInterval <= 0 {
		p.LearnInterval = 6 * time.Hour
	}
	if p.StatsInterval <= 0 {
		p.StatsInterval = 30 * time.Minute
	}
	return nil
}

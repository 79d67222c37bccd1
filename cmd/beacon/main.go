package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	berrors "github.com/edupath/beacon/internal/errors"
	"github.com/edupath/beacon/internal/profile"
	"github.com/edupath/beacon/plugin/ai"
	"github.com/edupath/beacon/server/middleware"
	"github.com/edupath/beacon/server/runner/sync"
	"github.com/edupath/beacon/server/scheduler"
	"github.com/edupath/beacon/server/service/feedback"
	"github.com/edupath/beacon/server/service/recommend"
	"github.com/edupath/beacon/store"
	"github.com/edupath/beacon/store/db"
)

const (
	taskSync  = "embedding-sync"
	taskLearn = "learning-loop"
	taskStats = "stats-snapshot"
)

var (
	instanceProfile *profile.Profile

	rootCmd = &cobra.Command{
		Use:   "beacon",
		Short: "beacon is the embedding sync and recommendation daemon",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				slog.Error("daemon exited with error", "error", err)
				os.Exit(1)
			}
		},
	}
)

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("data", "")
	viper.SetDefault("dsn", "")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the daemon, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("beacon")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	instanceProfile = &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: "0.1.0",
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if instanceProfile.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	if err := driver.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	storeInstance := store.New(driver, instanceProfile)
	defer storeInstance.Close()

	embedder, err := buildEmbedder(instanceProfile, logger)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(rate.Every(time.Second), 5, 10*time.Minute)
	recommender := recommend.NewService(storeInstance, embedder, &storedProfileSource{store: storeInstance}, limiter)
	if err := recommender.LoadConfig(ctx); err != nil {
		logger.Warn("failed to load recommendation config, using defaults", "error", err)
	}

	learner := feedback.NewLoop(storeInstance, recommender, feedback.DefaultParams())

	syncConfig := sync.DefaultConfig()
	syncConfig.BatchSize = instanceProfile.SyncBatchSize
	syncConfig.Model = instanceProfile.EmbeddingModel
	syncRunner := sync.NewRunner(storeInstance, embedder, syncConfig)

	sched := scheduler.New(scheduler.SystemClock())
	tasks := []scheduler.Task{
		{
			Name:     taskSync,
			Interval: instanceProfile.SyncInterval,
			Timeout:  30 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return syncRunner.Sync(ctx)
			},
		},
		{
			Name:     taskLearn,
			Interval: instanceProfile.LearnInterval,
			Timeout:  10 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return learner.ProcessOnce(ctx)
			},
		},
		{
			Name:     taskStats,
			Interval: instanceProfile.StatsInterval,
			Timeout:  time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return logStats(ctx, storeInstance, logger)
			},
		},
	}
	for _, task := range tasks {
		if err := sched.Register(task); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	logger.Info("beacon daemon started",
		"version", instanceProfile.Version,
		"mode", instanceProfile.Mode,
		"driver", instanceProfile.Driver,
		"embedding_provider", instanceProfile.EmbeddingProvider)

	// One reconciliation on boot so a fresh index does not wait for the first
	// interval tick.
	if report, err := sched.RunNow(ctx, taskSync); err != nil {
		return err
	} else if !report.Success {
		logger.Warn("initial embedding sync failed", "error", report.Err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	cancel()
	return nil
}

func buildEmbedder(p *profile.Profile, logger *slog.Logger) (ai.EmbeddingService, error) {
	configs := ai.ConfigsFromProfile(p)
	providers := make([]ai.EmbeddingService, 0, len(configs))
	for _, config := range configs {
		provider, err := ai.NewEmbeddingService(config)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	chain, err := ai.NewChain(providers...)
	if err != nil {
		return nil, err
	}
	chain.SetLogger(logger)
	return chain, nil
}

// storedProfileSource reads the preference source text seeded by the coaching
// platform. A user the platform never seeded has no profile to embed.
type storedProfileSource struct {
	store *store.Store
}

func (s *storedProfileSource) ProfileText(ctx context.Context, userID string) (string, error) {
	preference, err := s.store.GetUserPreference(ctx, userID)
	if err != nil {
		return "", err
	}
	if preference == nil || preference.SourceText == "" {
		return "", berrors.NotFound("user profile", userID)
	}
	return preference.SourceText, nil
}

type statsSnapshot struct {
	CatalogSize     int
	IndexedCount    int
	FeedbackBacklog int
}

func logStats(ctx context.Context, st *store.Store, logger *slog.Logger) (*statsSnapshot, error) {
	catalog, err := st.ListOpportunities(ctx, &store.FindOpportunity{})
	if err != nil {
		return nil, err
	}
	indexed, err := st.ListOpportunityEmbeddingIDs(ctx)
	if err != nil {
		return nil, err
	}
	unprocessed := false
	backlog, err := st.ListFeedbackEvents(ctx, &store.FindFeedbackEvent{Processed: &unprocessed})
	if err != nil {
		return nil, err
	}

	snapshot := &statsSnapshot{
		CatalogSize:     len(catalog),
		IndexedCount:    len(indexed),
		FeedbackBacklog: len(backlog),
	}
	logger.Info("stats snapshot",
		"catalog_size", snapshot.CatalogSize,
		"indexed_count", snapshot.IndexedCount,
		"feedback_backlog", snapshot.FeedbackBacklog)
	return snapshot, nil
}

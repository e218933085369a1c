// Package cli provides the command-line interface for ragpipe.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ForkIt369/ragpipe/internal/breaker"
	"github.com/ForkIt369/ragpipe/internal/chunker"
	"github.com/ForkIt369/ragpipe/internal/config"
	"github.com/ForkIt369/ragpipe/internal/embedding"
	"github.com/ForkIt369/ragpipe/internal/index"
	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/ratelimit"
	"github.com/ForkIt369/ragpipe/internal/service"
	"github.com/ForkIt369/ragpipe/internal/store"
	"github.com/ForkIt369/ragpipe/internal/tokenizer"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	// Global config, set in PersistentPreRunE
	cfg config.Config

	// Lazy-initialized application state
	appState *app

	logCleanup func() error
)

// app bundles the wired pipeline components shared by commands.
type app struct {
	store  *store.Store
	index  *index.Index
	jobs   *service.JobManager
	stats  *metrics.Collector
	docs   *service.DocumentService
	search *service.SearchService
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "Document chunking, embedding, and hybrid retrieval pipeline",
	Long: `Ragpipe ingests documents, splits them into token-bounded chunks,
embeds the chunks through a rate-limited provider, and serves hybrid
vector + keyword search over the result.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		logCleanup = cleanup

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appState != nil && appState.store != nil {
			if err := appState.store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getApp wires the pipeline components. Commands that embed or search pass
// requireProvider=true; those only reading local state pass false.
func getApp(requireProvider bool) (*app, error) {
	if appState != nil {
		return appState, nil
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ix := index.New()
	if err := service.RestoreIndex(st, ix); err != nil {
		return nil, fmt.Errorf("restore index: %w", err)
	}

	jobs := service.NewJobManager(st)
	if err := jobs.Restore(); err != nil {
		return nil, fmt.Errorf("restore jobs: %w", err)
	}
	stats := metrics.NewCollector()

	appState = &app{
		store: st,
		index: ix,
		jobs:  jobs,
		stats: stats,
	}

	if !requireProvider {
		return appState, nil
	}

	provider, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:          embedding.ProviderType(cfg.Provider),
		Model:             cfg.EmbeddingModel,
		ExpectedDimension: cfg.Dimension,
		APIKey:            cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}

	cache, err := embedding.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	counter := tokenizer.For(cfg.TokenizerModel)
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerWindow: cfg.RequestsPerWindow,
		TokensPerWindow:   cfg.TokensPerWindow,
		Window:            time.Duration(cfg.WindowSeconds) * time.Second,
		Smooth:            cfg.SmoothRate,
	})
	brk := breaker.New(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldown)*time.Second)

	embedCfg := embedding.DefaultConfig()
	embedCfg.MaxBatchItems = cfg.MaxBatchItems
	embedCfg.MaxBatchTokens = cfg.MaxBatchTokens
	embedCfg.Workers = cfg.Workers
	embedCfg.CallTimeout = time.Duration(cfg.CallTimeout) * time.Second
	embedCfg.Retry.MaxAttempts = cfg.RetryAttempts

	appState.docs = service.NewDocumentService(service.DocumentServiceConfig{
		Store:   appState.store,
		Jobs:    appState.jobs,
		Index:   appState.index,
		Stats:   stats,
		Counter: counter,
		ChunkOpts: chunker.Options{
			MaxTokens:     cfg.ChunkMaxTokens,
			MinTokens:     cfg.ChunkMinTokens,
			OverlapTokens: cfg.ChunkOverlapTokens,
			Strategy:      chunker.Strategy(cfg.ChunkStrategy),
		},
		Provider: provider,
		Limiter:  limiter,
		Breaker:  brk,
		Cache:    cache,
		EmbedCfg: embedCfg,
	})
	appState.search = service.NewSearchService(provider, appState.index, stats)

	return appState, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

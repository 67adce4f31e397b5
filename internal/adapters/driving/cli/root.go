// Package cli provides the cobra command tree for Strata.
// All services are constructed explicitly here and handed to the commands;
// there is no ambient service container.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-search/strata/internal/adapters/driven/config/file"
	embollama "github.com/strata-search/strata/internal/adapters/driven/embedding/ollama"
	embopenai "github.com/strata-search/strata/internal/adapters/driven/embedding/openai"
	genopenai "github.com/strata-search/strata/internal/adapters/driven/generation/openai"
	"github.com/strata-search/strata/internal/adapters/driven/storage/sqlite"
	"github.com/strata-search/strata/internal/chunker"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/core/services"
	"github.com/strata-search/strata/internal/index/hnsw"
	"github.com/strata-search/strata/internal/logger"
	"github.com/strata-search/strata/internal/pipeline"

	"golang.org/x/time/rate"
)

var (
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Hybrid retrieval over captured technical documents",
	Long: `Strata ingests captured technical documents, splits them into
prioritised chunks, embeds them and answers similarity queries that can be
constrained by category, tags and publication date.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired service graph for one command invocation.
type app struct {
	cfg        *file.Config
	store      *sqlite.Store
	provider   driven.EmbeddingProvider
	index      *hnsw.Index
	pipe       *pipeline.Pipeline
	ingestor   *services.IngestOrchestrator
	retrieval  *services.RetrievalService
	generation driven.GenerationService
}

// buildApp constructs the full service graph from configuration.
// The persisted index, if any, is restored before returning.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := file.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	index, err := hnsw.New(hnsw.Config{
		Dimensions:     provider.Dimensions(),
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		Oversample:     cfg.Index.Oversample,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	entries, err := store.IndexStore().LoadEntries(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load persisted index: %w", err)
	}
	if len(entries) > 0 {
		if err := index.Restore(ctx, entries); err != nil {
			store.Close()
			return nil, fmt.Errorf("restore index: %w", err)
		}
		logger.Debug("restored %d index entries", len(entries))
	}

	pipeCfg := pipeline.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		MaxRetries:     cfg.Pipeline.MaxRetries,
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		RateLimit:      rate.Limit(cfg.Pipeline.BatchesPerSec),
		QueueSize:      cfg.Pipeline.QueueSize,
		Concurrency:    cfg.Pipeline.Concurrency,
	}
	pipe := pipeline.New(provider, pipeCfg)

	ch := chunker.New(
		chunker.WithMaxChunkSize(cfg.Chunking.MaxChunkSize),
		chunker.WithMaxFullDocSize(cfg.Chunking.MaxFullDocSize),
	)

	docStore := store.DocumentStore()

	var generation driven.GenerationService
	if cfg.Generation.Enabled {
		generation, err = genopenai.New(genopenai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Generation.BaseURL,
			Model:   cfg.Generation.Model,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("generation service: %w", err)
		}
	}

	ingestor := services.NewIngestOrchestrator(ch, pipe, index, docStore)
	if cfg.Pipeline.ChunkWorkers > 0 {
		ingestor.SetChunkWorkers(cfg.Pipeline.ChunkWorkers)
	}

	return &app{
		cfg:        cfg,
		store:      store,
		provider:   provider,
		index:      index,
		pipe:       pipe,
		ingestor:   ingestor,
		retrieval:  services.NewRetrievalService(pipe, index, docStore, generation),
		generation: generation,
	}, nil
}

// buildProvider selects the embedding provider from configuration.
func buildProvider(cfg *file.Config) (driven.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "", "openai":
		return embopenai.New(embopenai.Config{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	case "ollama":
		return embollama.New(embollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// close releases the app's resources.
func (a *app) close() {
	a.provider.Close()
	a.index.Close()
	a.store.Close()
	if a.generation != nil {
		a.generation.Close()
	}
}

// persistIndex snapshots the live index into the store.
func (a *app) persistIndex(ctx context.Context) error {
	if err := a.store.IndexStore().SaveEntries(ctx, a.index.Snapshot()); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

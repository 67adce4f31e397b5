// Package file loads Strata configuration from a TOML file.
// Secrets (API keys) come from the environment, not the config file.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration.
type Config struct {
	// DataDir is where the SQLite database lives (default ~/.strata/data).
	DataDir string `toml:"data_dir"`

	// CaptureDir is the directory of captured markdown documents.
	CaptureDir string `toml:"capture_dir"`

	Embedding  EmbeddingConfig  `toml:"embedding"`
	Generation GenerationConfig `toml:"generation"`
	Index      IndexConfig      `toml:"index"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Chunking   ChunkingConfig   `toml:"chunking"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama" (default "openai").
	Provider string `toml:"provider"`

	// Model overrides the provider's default embedding model.
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// Dimensions overrides the model's default dimensionality.
	Dimensions int `toml:"dimensions"`
}

// GenerationConfig tunes the generation collaborator.
type GenerationConfig struct {
	// Enabled turns the answer command on (default false: retrieval only).
	Enabled bool `toml:"enabled"`

	// Model overrides the default chat model.
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`
}

// IndexConfig tunes the HNSW graph.
type IndexConfig struct {
	M              int     `toml:"m"`
	EfConstruction int     `toml:"ef_construction"`
	EfSearch       int     `toml:"ef_search"`
	Oversample     float64 `toml:"oversample"`
}

// PipelineConfig tunes the embedding pipeline.
type PipelineConfig struct {
	BatchSize      int           `toml:"batch_size"`
	MaxRetries     int           `toml:"max_retries"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	BatchesPerSec  float64       `toml:"batches_per_sec"`
	QueueSize      int           `toml:"queue_size"`
	Concurrency    int           `toml:"concurrency"`
	ChunkWorkers   int           `toml:"chunk_workers"`
}

// ChunkingConfig tunes the chunker.
type ChunkingConfig struct {
	MaxChunkSize   int `toml:"max_chunk_size"`
	MaxFullDocSize int `toml:"max_full_doc_size"`
}

// RetrievalConfig tunes query defaults.
type RetrievalConfig struct {
	K             int     `toml:"k"`
	MinSimilarity float64 `toml:"min_similarity"`
}

// Load reads the config file, falling back to defaults when absent.
// If path is empty, ~/.strata/config.toml is used.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".strata", "config.toml")
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

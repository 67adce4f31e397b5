package driven

import "context"

// EmbeddingProvider generates vector embeddings from text.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingProvider generates vectors; VectorIndex stores them.
//
// Failure contract: rate-limit rejections wrap domain.ErrRateLimited and
// provider-side outages wrap domain.ErrProviderUnavailable (both transient,
// retried by the pipeline); malformed input wraps domain.ErrInvalidInput
// (permanent, never retried).
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Local models via inference servers
type EmbeddingProvider interface {
	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	// This is fixed per model and must match VectorIndex configuration.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the provider is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

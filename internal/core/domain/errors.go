package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	// Permanent: callers must not retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDocument indicates a document with no content was submitted.
	// Permanent: the document produces zero chunks.
	ErrEmptyDocument = errors.New("empty document")

	// ErrRateLimited indicates the embedding provider rejected a call for
	// throughput reasons. Transient: retried with backoff up to the budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates a transient provider-side failure
	// (timeout, 5xx). Retried with backoff up to the budget.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates a vector whose dimensionality differs
	// from the index's. Structural: never truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexClosed indicates an operation on a closed vector index.
	ErrIndexClosed = errors.New("vector index closed")

	// ErrIndexCorrupt indicates a persisted index that cannot be restored.
	// Structural: requires an explicit rebuild, never auto-repaired.
	ErrIndexCorrupt = errors.New("persisted index corrupt")

	// ErrGenerationUnavailable indicates the generation collaborator is not
	// configured. Retrieval still works; answering is disabled.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

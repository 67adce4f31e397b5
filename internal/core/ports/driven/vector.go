package driven

import (
	"context"
	"time"

	"github.com/strata-search/strata/internal/core/domain"
)

// VectorIndex provides approximate nearest-neighbour search over chunk
// embeddings. Backed by an in-process HNSW graph.
//
// Every vector in an index instance has the dimensionality fixed at
// construction time; a mismatch is a structural error
// (domain.ErrDimensionMismatch) and leaves the index unchanged.
type VectorIndex interface {
	// Insert adds a vector with the denormalized metadata needed for
	// predicate evaluation. Insertion is all-or-nothing per entry.
	Insert(ctx context.Context, entry IndexEntry) error

	// Search finds the k nearest live entries by cosine similarity,
	// descending score, restricted to entries satisfying the predicate.
	// Returning fewer than k entries is valid when fewer qualify.
	Search(ctx context.Context, query []float32, k int, pred *domain.Predicate) ([]VectorHit, error)

	// Delete tombstones an entry. The vector stays in the graph until
	// the next compaction but is excluded from results.
	Delete(ctx context.Context, chunkID string) error

	// Compact rebuilds the graph without tombstoned entries.
	Compact(ctx context.Context) error

	// Len returns the number of live (non-tombstoned) entries.
	Len() int

	// Dimensions returns the fixed vector dimensionality.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// IndexEntry is the unit owned by the vector index: a chunk id, its
// embedding, and the metadata needed to evaluate predicates without a
// second lookup. Chunk text stays in the document store, referenced by id.
type IndexEntry struct {
	// ChunkID references the chunk in the document store.
	ChunkID string

	// Vector is the chunk's embedding.
	Vector []float32

	// Priority is the chunk's retrieval priority (lower wins ties).
	Priority int

	// Category, Tags and Published are denormalized from the document
	// metadata for predicate pushdown.
	Category  string
	Tags      []string
	Published time.Time
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Entry is the matched index entry.
	Entry IndexEntry

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

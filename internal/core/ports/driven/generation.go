package driven

import (
	"context"

	"github.com/strata-search/strata/internal/core/domain"
)

// GenerationService is the external text-generation collaborator.
// Retrieval treats its output as an opaque string; prompt construction and
// model behaviour are not designed here.
type GenerationService interface {
	// Generate produces an answer from the query and ranked context chunks.
	Generate(ctx context.Context, query string, contextChunks []domain.RetrievedChunk) (string, error)

	// Close releases resources.
	Close() error
}

package driving

import (
	"context"

	"github.com/strata-search/strata/internal/core/domain"
)

// RetrievalService answers similarity queries over the indexed corpus.
type RetrievalService interface {
	// Retrieve embeds the query text and returns ranked context chunks.
	// Zero results is a valid, non-error outcome.
	Retrieve(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error)

	// Answer retrieves context and hands it to the generation collaborator,
	// returning its response plus a latency measurement.
	Answer(ctx context.Context, query string, opts domain.QueryOptions) (*domain.Answer, error)
}

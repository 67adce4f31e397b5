package driving

import (
	"context"

	"github.com/strata-search/strata/internal/core/domain"
)

// Ingestor turns documents into indexed, retrievable chunks.
type Ingestor interface {
	// Ingest processes a single document end to end:
	// chunk, embed, persist, index.
	Ingest(ctx context.Context, doc domain.Document) (IngestReport, error)

	// IngestAll drains a document stream through a parallel chunking pool
	// and the embedding pipeline. Per-document failures are reported in
	// the summary; only structural failures abort the run.
	IngestAll(ctx context.Context, docs <-chan domain.Document, errs <-chan error) (IngestReport, error)
}

// IngestReport summarises an ingestion run.
type IngestReport struct {
	// DocumentsProcessed is the number of documents fully indexed.
	DocumentsProcessed int

	// ChunksIndexed is the number of chunks inserted into the index.
	ChunksIndexed int

	// Failures holds per-document errors that did not abort the run.
	Failures []IngestFailure
}

// IngestFailure records a non-fatal per-document error.
type IngestFailure struct {
	DocumentID string
	Err        error
}

package driven

import (
	"context"

	"github.com/strata-search/strata/internal/core/domain"
)

// DocumentSource supplies captured documents with their metadata header
// already parsed. The core never parses the header format itself.
//
// Load streams documents on the first channel and failures on the second.
// Both channels are closed when the source is exhausted or the context is
// cancelled. A per-document parse failure is reported on the error channel
// and does not stop the stream.
type DocumentSource interface {
	// Load streams all documents from the source.
	Load(ctx context.Context) (<-chan domain.Document, <-chan error)

	// Watch streams documents as they appear or change after Load.
	// Sources that cannot watch return domain.ErrInvalidInput.
	Watch(ctx context.Context) (<-chan domain.Document, <-chan error)

	// Close releases resources.
	Close() error
}

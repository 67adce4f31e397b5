package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/strata-search/strata/internal/chunker"
	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/core/ports/driving"
	"github.com/strata-search/strata/internal/logger"
	"github.com/strata-search/strata/internal/pipeline"
)

// Ensure IngestOrchestrator implements the interface.
var _ driving.Ingestor = (*IngestOrchestrator)(nil)

// DefaultChunkWorkers is the default size of the chunking worker pool.
const DefaultChunkWorkers = 4

// IngestOrchestrator coordinates ingestion: documents are chunked by a
// parallel worker pool feeding a single bounded queue into the embedding
// pipeline, and embedded chunks are persisted and inserted into the index.
//
// Error boundary: a failure on one document is counted and reported while
// the rest of the batch continues; structural index errors abort the run.
type IngestOrchestrator struct {
	chunker  *chunker.Chunker
	pipe     *pipeline.Pipeline
	index    driven.VectorIndex
	docStore driven.DocumentStore

	workers int
}

// NewIngestOrchestrator creates an ingest orchestrator. Dependencies are
// passed explicitly; there is no ambient service container.
func NewIngestOrchestrator(
	ch *chunker.Chunker,
	pipe *pipeline.Pipeline,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
) *IngestOrchestrator {
	return &IngestOrchestrator{
		chunker:  ch,
		pipe:     pipe,
		index:    index,
		docStore: docStore,
		workers:  DefaultChunkWorkers,
	}
}

// SetChunkWorkers overrides the chunking pool size.
func (o *IngestOrchestrator) SetChunkWorkers(n int) {
	if n > 0 {
		o.workers = n
	}
}

// Ingest processes a single document end to end.
func (o *IngestOrchestrator) Ingest(ctx context.Context, doc domain.Document) (driving.IngestReport, error) {
	docs := make(chan domain.Document, 1)
	docs <- doc
	close(docs)
	return o.IngestAll(ctx, docs, nil)
}

// IngestAll drains a document stream through the chunking pool and the
// embedding pipeline. Source errors are per-document failures and do not
// stop the stream.
func (o *IngestOrchestrator) IngestAll(
	ctx context.Context, docs <-chan domain.Document, srcErrs <-chan error,
) (driving.IngestReport, error) {
	var (
		mu     sync.Mutex
		report driving.IngestReport
	)

	recordFailure := func(docID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures = append(report.Failures, driving.IngestFailure{
			DocumentID: docID,
			Err:        err,
		})
	}

	// Bounded queue between the chunking pool and the embedding stage:
	// a slow provider creates backpressure, not unbounded buffering.
	chunkQueue := make(chan domain.Chunk, o.pipe.QueueSize())

	// Chunk ownership map so embedded chunks can be attributed back to
	// their document's denormalized metadata at insertion time.
	var metaMu sync.RWMutex
	docMeta := make(map[string]domain.Metadata)

	g, gctx := errgroup.WithContext(ctx)

	// Stage 1: parallel chunking workers. Chunking is pure and documents
	// share no mutable state, so this is embarrassingly parallel.
	var chunkWG sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		chunkWG.Add(1)
		g.Go(func() error {
			defer chunkWG.Done()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case doc, ok := <-docs:
					if !ok {
						return nil
					}
					if err := o.chunkOne(gctx, doc, chunkQueue, docMeta, &metaMu); err != nil {
						recordFailure(doc.ID, err)
						continue
					}
					mu.Lock()
					report.DocumentsProcessed++
					mu.Unlock()
				}
			}
		})
	}

	// Close the queue once every chunking worker has drained the stream.
	go func() {
		chunkWG.Wait()
		close(chunkQueue)
	}()

	// Stage 2: the embedding pipeline drains the queue.
	results, batchErrs := o.pipe.Run(gctx, chunkQueue)

	// Stage 3: insert embedded chunks into the index.
	g.Go(func() error {
		for results != nil || batchErrs != nil {
			select {
			case <-gctx.Done():
				return gctx.Err()

			case be, ok := <-batchErrs:
				if !ok {
					batchErrs = nil
					continue
				}
				// The whole batch is reported, never guess-filled.
				for _, c := range be.Chunks {
					recordFailure(c.DocumentID, be.Err)
				}

			case res, ok := <-results:
				if !ok {
					results = nil
					continue
				}
				if err := o.insertOne(gctx, res, docMeta, &metaMu); err != nil {
					if isStructural(err) {
						return err
					}
					recordFailure(res.Chunk.DocumentID, err)
					continue
				}
				mu.Lock()
				report.ChunksIndexed++
				mu.Unlock()
			}
		}
		return nil
	})

	// Source errors are reported per document, not fatal.
	if srcErrs != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case err, ok := <-srcErrs:
					if !ok {
						return nil
					}
					logger.Warn("document source error: %v", err)
					recordFailure("", err)
				}
			}
		})
	}

	err := g.Wait()
	logger.Info("ingestion complete: %d documents, %d chunks indexed, %d failures",
		report.DocumentsProcessed, report.ChunksIndexed, len(report.Failures))
	return report, err
}

// chunkOne chunks and persists one document and queues its chunks.
func (o *IngestOrchestrator) chunkOne(
	ctx context.Context,
	doc domain.Document,
	queue chan<- domain.Chunk,
	docMeta map[string]domain.Metadata,
	metaMu *sync.RWMutex,
) error {
	chunks := o.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrEmptyDocument)
	}

	if err := o.docStore.SaveDocument(ctx, &doc); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	if err := o.docStore.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks for %s: %w", doc.ID, err)
	}

	metaMu.Lock()
	docMeta[doc.ID] = doc.Meta
	metaMu.Unlock()

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case queue <- chunk:
		}
	}
	return nil
}

// insertOne inserts one embedded chunk into the vector index.
func (o *IngestOrchestrator) insertOne(
	ctx context.Context,
	res pipeline.Result,
	docMeta map[string]domain.Metadata,
	metaMu *sync.RWMutex,
) error {
	metaMu.RLock()
	meta := docMeta[res.Chunk.DocumentID]
	metaMu.RUnlock()

	entry := driven.IndexEntry{
		ChunkID:   res.Chunk.ID,
		Vector:    res.Vector,
		Priority:  res.Chunk.Priority(),
		Category:  meta.Category,
		Tags:      meta.Tags,
		Published: meta.Published,
	}

	if err := o.index.Insert(ctx, entry); err != nil {
		return fmt.Errorf("index chunk %s: %w", res.Chunk.ID, err)
	}
	return nil
}

// isStructural reports whether an error is fatal for the index instance.
func isStructural(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) ||
		errors.Is(err, domain.ErrIndexClosed) ||
		errors.Is(err, domain.ErrIndexCorrupt)
}

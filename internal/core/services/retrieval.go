package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/core/ports/driving"
	"github.com/strata-search/strata/internal/logger"
	"github.com/strata-search/strata/internal/pipeline"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// DefaultK is the result count when the caller does not specify one.
const DefaultK = 10

// RetrievalService is the hybrid query engine plus orchestration: it embeds
// the query, searches the vector index under the metadata predicate,
// hydrates chunk text from the document store and optionally hands the
// ranked context to the generation collaborator.
type RetrievalService struct {
	pipe       *pipeline.Pipeline
	index      driven.VectorIndex
	docStore   driven.DocumentStore
	generation driven.GenerationService

	// oversample multiplies k when asking the index for candidates, so
	// threshold and residual filtering still leave k results to return.
	oversample float64
}

// NewRetrievalService creates a retrieval service.
// The generation parameter is optional (can be nil): Retrieve works without
// it, Answer fails with domain.ErrGenerationUnavailable.
func NewRetrievalService(
	pipe *pipeline.Pipeline,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	generation driven.GenerationService,
) *RetrievalService {
	return &RetrievalService{
		pipe:       pipe,
		index:      index,
		docStore:   docStore,
		generation: generation,
		oversample: 3,
	}
}

// Retrieve embeds the query text and returns ranked context chunks.
// Zero qualifying results is a valid, non-error outcome.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.QueryOptions,
) ([]domain.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("empty query, returning no results")
		return []domain.RetrievedChunk{}, nil
	}

	k := opts.K
	if k <= 0 {
		k = DefaultK
	}

	logger.Debug("query %q: k=%d threshold=%.2f predicate=%t",
		query, k, opts.MinSimilarity, !opts.Predicate.IsEmpty())

	// Single-item batch through the same pipeline as chunk embedding,
	// inheriting its retry and rate-limit discipline.
	vector, err := s.pipe.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch: threshold filtering below can reject candidates the
	// index already considered nearest.
	fetch := int(math.Ceil(float64(k) * s.oversample))
	hits, err := s.index.Search(ctx, vector, fetch, opts.Predicate)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("index returned %d candidates", len(hits))

	results, err := s.hydrate(ctx, hits, opts)
	if err != nil {
		return nil, err
	}

	// Stable sort: score descending, priority ascending, id ascending.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Priority() != results[j].Chunk.Priority() {
			return results[i].Chunk.Priority() < results[j].Chunk.Priority()
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}

	logger.Info("query %q: %d results", query, len(results))
	return results, nil
}

// hydrate resolves hits against the document store, applying the similarity
// threshold and any residual predicate filtering the index did not resolve.
func (s *RetrievalService) hydrate(
	ctx context.Context, hits []driven.VectorHit, opts domain.QueryOptions,
) ([]domain.RetrievedChunk, error) {
	results := make([]domain.RetrievedChunk, 0, len(hits))

	for _, hit := range hits {
		if hit.Similarity < opts.MinSimilarity {
			continue
		}
		if !opts.Predicate.Matches(hit.Entry.Category, hit.Entry.Tags, hit.Entry.Published) {
			continue
		}

		chunk, err := s.docStore.GetChunk(ctx, hit.Entry.ChunkID)
		if err != nil {
			if isNotFound(err) {
				// Chunk superseded between index search and hydration.
				logger.Debug("chunk %s vanished during hydration, skipping", hit.Entry.ChunkID)
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.Entry.ChunkID, err)
		}

		results = append(results, domain.RetrievedChunk{
			Chunk: *chunk,
			Score: hit.Similarity,
		})
	}

	return results, nil
}

// Answer retrieves context and hands it to the generation collaborator.
func (s *RetrievalService) Answer(
	ctx context.Context, query string, opts domain.QueryOptions,
) (*domain.Answer, error) {
	if s.generation == nil {
		return nil, domain.ErrGenerationUnavailable
	}

	chunks, err := s.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := s.generation.Generate(ctx, query, chunks)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	logger.Info("generation took %s for %d context chunks", latency, len(chunks))

	return &domain.Answer{
		Text:              text,
		Context:           chunks,
		GenerationLatency: latency,
	}, nil
}

// isNotFound reports whether err wraps domain.ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// Package memory provides in-memory store implementations, used in tests
// and for ephemeral runs without persistence.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
)

// Ensure DocStore implements the interface.
var _ driven.DocumentStore = (*DocStore)(nil)

// DocStore is an in-memory document and chunk store.
type DocStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string]domain.Chunk
	order     map[string][]string // documentID -> chunk ids in insertion order
}

// NewDocStore creates an empty in-memory store.
func NewDocStore() *DocStore {
	return &DocStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string]domain.Chunk),
		order:     make(map[string][]string),
	}
}

// SaveDocument stores or updates a document.
func (s *DocStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// SaveChunks stores chunks for a document.
func (s *DocStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		if _, exists := s.chunks[chunk.ID]; !exists {
			s.order[chunk.DocumentID] = append(s.order[chunk.DocumentID], chunk.ID)
		}
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &doc, nil
}

// GetChunk retrieves a single chunk by ID.
func (s *DocStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return &chunk, nil
}

// GetChunks retrieves all chunks for a document, in insertion order.
func (s *DocStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[documentID]
	chunks := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, s.chunks[id])
	}
	return chunks, nil
}

// DeleteDocument removes a document and its chunks.
func (s *DocStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	for _, chunkID := range s.order[id] {
		delete(s.chunks, chunkID)
	}
	delete(s.order, id)
	return nil
}

// Close releases resources.
func (s *DocStore) Close() error {
	return nil
}

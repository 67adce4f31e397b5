package services

import (
	"context"
	"sync"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
)

// mockEmbedder maps chunk text to fixed vectors, falling back to def.
type mockEmbedder struct {
	mu      sync.Mutex
	calls   int
	vectors map[string][]float32
	def     []float32
	err     error
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		vectors: make(map[string][]float32),
		def:     []float32{1, 1, 1},
	}
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = m.def
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return len(m.def) }

func (m *mockEmbedder) ModelName() string            { return "mock-embedder" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockIndex is a scriptable vector index. Search returns the scripted hits
// regardless of the query; Insert records entries.
type mockIndex struct {
	mu        sync.Mutex
	hits      []driven.VectorHit
	searchErr error
	insertErr error

	inserted []driven.IndexEntry
	gotK     int
	gotPred  *domain.Predicate
}

func (m *mockIndex) Insert(_ context.Context, entry driven.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockIndex) Search(_ context.Context, _ []float32, k int, pred *domain.Predicate) ([]driven.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotK = k
	m.gotPred = pred
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits, nil
}

func (m *mockIndex) Delete(_ context.Context, _ string) error { return nil }
func (m *mockIndex) Compact(_ context.Context) error          { return nil }

func (m *mockIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func (m *mockIndex) Dimensions() int { return 3 }
func (m *mockIndex) Close() error    { return nil }

// mockGeneration records what it was asked and answers with a fixed string.
type mockGeneration struct {
	text string
	err  error

	gotQuery  string
	gotChunks []domain.RetrievedChunk
}

func (m *mockGeneration) Generate(_ context.Context, query string, chunks []domain.RetrievedChunk) (string, error) {
	m.gotQuery = query
	m.gotChunks = chunks
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockGeneration) Close() error { return nil }

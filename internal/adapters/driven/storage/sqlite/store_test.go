package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	store := newTestStore(t)
	assert.NotEmpty(t, store.Path())
}

func TestNewStore_Reopenable(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.DocumentStore().SaveDocument(context.Background(),
		&domain.Document{ID: "doc-1", Content: "body"}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.DocumentStore().GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "body", doc.Content)
}

func TestDocumentStore_SaveAndGetDocument(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	published := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	doc := &domain.Document{
		ID:      "doc-1",
		Content: "# Title\n\nBody.",
		Meta: domain.Metadata{
			Title:     "Title",
			Source:    "https://example.com/post",
			Published: published,
			Category:  "programming",
			Tags:      []string{"go", "testing"},
		},
	}
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, "Title", got.Meta.Title)
	assert.Equal(t, []string{"go", "testing"}, got.Meta.Tags)
	assert.True(t, got.Meta.Published.Equal(published))
}

func TestDocumentStore_GetDocumentNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.DocumentStore().GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveDocumentUpserts(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{ID: "doc-1", Content: "old"}))
	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{ID: "doc-1", Content: "new"}))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
}

func TestDocumentStore_ChunksRoundTrip(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{ID: "doc-1", Content: "body"}))

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	chunks := []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Type: domain.ChunkSummary, Content: "summary", CreatedAt: created},
		{ID: "c-2", DocumentID: "doc-1", Type: domain.ChunkCode, Content: "func main() {}", Language: "go", CreatedAt: created},
		{ID: "c-3", DocumentID: "doc-1", Type: domain.ChunkFullDocument, Content: "full", Truncated: true, CreatedAt: created},
	}
	require.NoError(t, docs.SaveChunks(ctx, chunks))

	got, err := docs.GetChunk(ctx, "c-2")
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkCode, got.Type)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, "func main() {}", got.Content)

	all, err := docs.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c-1", all[0].ID)
	assert.Equal(t, "c-3", all[2].ID)
	assert.True(t, all[2].Truncated)
}

func TestDocumentStore_GetChunkNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.DocumentStore().GetChunk(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_DeleteDocumentCascadesToChunks(t *testing.T) {
	store := newTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, &domain.Document{ID: "doc-1", Content: "body"}))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Content: "chunk", CreatedAt: time.Now()},
	}))

	require.NoError(t, docs.DeleteDocument(ctx, "doc-1"))

	_, err := docs.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = docs.GetChunk(ctx, "c-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexStore_SaveAndLoadEntries(t *testing.T) {
	store := newTestStore(t)
	index := store.IndexStore()
	ctx := context.Background()

	published := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	entries := []driven.IndexEntry{
		{
			ChunkID:   "c-1",
			Vector:    []float32{0.1, -0.5, 0.9},
			Priority:  1,
			Category:  "programming",
			Tags:      []string{"go"},
			Published: published,
		},
		{
			ChunkID:  "c-2",
			Vector:   []float32{1, 0, 0},
			Priority: 3,
		},
	}
	require.NoError(t, index.SaveEntries(ctx, entries))

	loaded, err := index.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byID := map[string]driven.IndexEntry{}
	for _, e := range loaded {
		byID[e.ChunkID] = e
	}

	first := byID["c-1"]
	assert.Equal(t, []float32{0.1, -0.5, 0.9}, first.Vector)
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, "programming", first.Category)
	assert.Equal(t, []string{"go"}, first.Tags)
	assert.True(t, first.Published.Equal(published))

	second := byID["c-2"]
	assert.Equal(t, []float32{1, 0, 0}, second.Vector)
	assert.True(t, second.Published.IsZero())
	assert.Empty(t, second.Tags)
}

func TestIndexStore_SaveEntriesReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	index := store.IndexStore()
	ctx := context.Background()

	require.NoError(t, index.SaveEntries(ctx, []driven.IndexEntry{
		{ChunkID: "old", Vector: []float32{1}, Priority: 1},
	}))
	require.NoError(t, index.SaveEntries(ctx, []driven.IndexEntry{
		{ChunkID: "new", Vector: []float32{2}, Priority: 2},
	}))

	loaded, err := index.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].ChunkID)
}

func TestIndexStore_LoadEntriesEmptyDatabase(t *testing.T) {
	store := newTestStore(t)
	loaded, err := store.IndexStore().LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestIndexStore_MalformedVectorBlobIsCorrupt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO index_entries (chunk_id, vector, priority, category, tags, published)
		VALUES ('bad', X'010203', 1, '', '[]', NULL)
	`)
	require.NoError(t, err)

	_, err = store.IndexStore().LoadEntries(ctx)
	assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, 3.1415927, -2.5e-4}
	assert.Equal(t, vec, bytesToFloat32Slice(float32SliceToBytes(vec)))
}

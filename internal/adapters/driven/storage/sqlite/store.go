// Package sqlite provides SQLite-backed persistence for documents, chunks
// and serialized vector-index entries.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
)

// Store is a unified SQLite-based storage for all Strata persistence.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.strata/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".strata", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "strata.db")

	// WAL mode for concurrent readers during ingestion.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore backed by this store.
func (s *Store) DocumentStore() *DocumentStore {
	return &DocumentStore{store: s}
}

// IndexStore returns an IndexStore backed by this store.
func (s *Store) IndexStore() *IndexStore {
	return &IndexStore{store: s}
}

// migrate creates the schema.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			type        INTEGER NOT NULL,
			content     TEXT NOT NULL,
			language    TEXT NOT NULL DEFAULT '',
			truncated   INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

		CREATE TABLE IF NOT EXISTS index_entries (
			chunk_id  TEXT PRIMARY KEY,
			vector    BLOB NOT NULL,
			priority  INTEGER NOT NULL,
			category  TEXT NOT NULL DEFAULT '',
			tags      TEXT NOT NULL DEFAULT '[]',
			published DATETIME
		);
	`)
	return err
}

// DocumentStore persists documents and chunks.
type DocumentStore struct {
	store *Store
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, metadata)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata
	`, doc.ID, doc.Content, string(metaJSON))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// SaveChunks stores chunks for a document in one transaction.
func (s *DocumentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, type, content, language, truncated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			type = excluded.type,
			content = excluded.content,
			language = excluded.language,
			truncated = excluded.truncated
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, int(chunk.Type),
			chunk.Content, chunk.Language, chunk.Truncated, chunk.CreatedAt); err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, content, metadata FROM documents WHERE id = ?
	`, id)

	var doc domain.Document
	var metaJSON string
	if err := row.Scan(&doc.ID, &doc.Content, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("querying document: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &doc.Meta); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	return &doc, nil
}

// GetChunk retrieves a single chunk by ID.
func (s *DocumentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, type, content, language, truncated, created_at
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	return chunk, nil
}

// GetChunks retrieves all chunks for a document, in creation order.
func (s *DocumentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, type, content, language, truncated, created_at
		FROM chunks WHERE document_id = ? ORDER BY rowid
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

// DeleteDocument removes a document; chunks cascade.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Close is a no-op; the parent Store owns the connection.
func (s *DocumentStore) Close() error {
	return nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanChunk reads one chunk row.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var chunkType int
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunkType, &chunk.Content,
		&chunk.Language, &chunk.Truncated, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	chunk.Type = domain.ChunkType(chunkType)
	return &chunk, nil
}

// IndexStore persists serialized vector-index entries, sufficient to
// rebuild the graph on restart.
type IndexStore struct {
	store *Store
}

// SaveEntries replaces the persisted index with the given entries.
func (s *IndexStore) SaveEntries(ctx context.Context, entries []driven.IndexEntry) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return fmt.Errorf("clearing index entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_entries (chunk_id, vector, priority, category, tags, published)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ChunkID, float32SliceToBytes(e.Vector),
			e.Priority, e.Category, string(tagsJSON), nullableTime(e.Published)); err != nil {
			return fmt.Errorf("saving index entry %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadEntries reads all persisted index entries.
func (s *IndexStore) LoadEntries(ctx context.Context) ([]driven.IndexEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, vector, priority, category, tags, published FROM index_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("querying index entries: %w", err)
	}
	defer rows.Close()

	var entries []driven.IndexEntry
	for rows.Next() {
		var (
			e        driven.IndexEntry
			blob     []byte
			tagsJSON string
			pub      sql.NullTime
		)
		if err := rows.Scan(&e.ChunkID, &blob, &e.Priority, &e.Category, &tagsJSON, &pub); err != nil {
			return nil, fmt.Errorf("%w: scanning index entry: %v", domain.ErrIndexCorrupt, err)
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("%w: entry %s has a malformed vector blob", domain.ErrIndexCorrupt, e.ChunkID)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("%w: entry %s has malformed tags: %v", domain.ErrIndexCorrupt, e.ChunkID, err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		if pub.Valid {
			e.Published = pub.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

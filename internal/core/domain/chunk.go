package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkType is the closed set of chunk variants. Each type carries a fixed
// retrieval priority; type drives ranking tie-breaks and rendering.
type ChunkType int

const (
	// ChunkSummary is the document's enrichment summary.
	ChunkSummary ChunkType = iota

	// ChunkInsight is an extracted insight field (e.g. key concepts).
	ChunkInsight

	// ChunkCode is a fenced code block.
	ChunkCode

	// ChunkSection is a prose section delimited by headers.
	ChunkSection

	// ChunkFullDocument is the whole cleaned document body.
	ChunkFullDocument
)

// String returns the chunk type name.
func (t ChunkType) String() string {
	switch t {
	case ChunkSummary:
		return "summary"
	case ChunkInsight:
		return "insight"
	case ChunkCode:
		return "code"
	case ChunkSection:
		return "section"
	case ChunkFullDocument:
		return "full-document"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Priority returns the retrieval weight for the type.
// Lower values rank higher on similarity ties.
func (t ChunkType) Priority() int {
	switch t {
	case ChunkSummary, ChunkInsight:
		return 1
	case ChunkCode, ChunkSection:
		return 2
	case ChunkFullDocument:
		return 3
	default:
		return 3
	}
}

// Chunk is the smallest retrievable unit of document text.
// Content is immutable once embedded; re-embedding requires a new chunk.
type Chunk struct {
	// ID is stable across reprocessing of the same document content.
	ID string

	// DocumentID links back to the originating Document.
	// Chunks never hold the document itself; lookups go through the store.
	DocumentID string

	// Type is the chunk variant.
	Type ChunkType

	// Content is the text to embed and retrieve.
	Content string

	// Language is the declared language for code chunks, "" otherwise.
	Language string

	// Truncated is set when a full-document chunk was cut at the size cap.
	Truncated bool

	// CreatedAt is when the chunk was produced.
	CreatedAt time.Time
}

// Priority returns the chunk's retrieval priority.
func (c Chunk) Priority() int {
	return c.Type.Priority()
}

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("7a1f2d8e-4c3b-4a59-9b6d-0e8f1c2a3b4d")

// ChunkID derives a deterministic chunk identifier. Reprocessing the same
// document with unchanged content yields identical IDs; any content change
// yields a new ID (a new chunk version, never an in-place mutation).
func ChunkID(documentID string, t ChunkType, ordinal int, content string) string {
	name := fmt.Sprintf("%s/%s/%d/%s", documentID, t, ordinal, content)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

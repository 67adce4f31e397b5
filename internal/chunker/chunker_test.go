package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-search/strata/internal/core/domain"
)

func testDocument(content string) domain.Document {
	return domain.Document{
		ID:      domain.DocumentID("https://example.com/article"),
		Content: content,
		Meta: domain.Metadata{
			Title:  "Test Article",
			Source: "https://example.com/article",
		},
	}
}

func chunksOfType(chunks []domain.Chunk, t domain.ChunkType) []domain.Chunk {
	var out []domain.Chunk
	for _, ch := range chunks {
		if ch.Type == t {
			out = append(out, ch)
		}
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultMaxChunkSize, c.maxChunkSize)
	assert.Equal(t, DefaultMaxFullDocSize, c.maxFullDocSize)
}

func TestNew_Options(t *testing.T) {
	c := New(WithMaxChunkSize(500), WithMaxFullDocSize(1000))
	assert.Equal(t, 500, c.maxChunkSize)
	assert.Equal(t, 1000, c.maxFullDocSize)
}

func TestNew_FullDocSizeNeverBelowChunkSize(t *testing.T) {
	c := New(WithMaxChunkSize(3000), WithMaxFullDocSize(100))
	assert.Equal(t, 3000, c.maxFullDocSize)
}

func TestNew_IgnoresNonPositiveSizes(t *testing.T) {
	c := New(WithMaxChunkSize(0), WithMaxFullDocSize(-5))
	assert.Equal(t, DefaultMaxChunkSize, c.maxChunkSize)
	assert.Equal(t, DefaultMaxFullDocSize, c.maxFullDocSize)
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New()
	chunks := c.Chunk(testDocument("   \n\t  "))
	assert.Empty(t, chunks)
}

func TestChunk_SummaryBecomesPriorityOneChunk(t *testing.T) {
	c := New()
	doc := testDocument("Some body text.")
	doc.Meta.Summary = "An article about container orchestration."

	chunks := c.Chunk(doc)

	summaries := chunksOfType(chunks, domain.ChunkSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, "An article about container orchestration.", summaries[0].Content)
	assert.Equal(t, 1, summaries[0].Type.Priority())
	assert.Equal(t, doc.ID, summaries[0].DocumentID)
}

func TestChunk_KeyConceptsBecomeInsightChunk(t *testing.T) {
	c := New()
	doc := testDocument("Body.")
	doc.Meta.KeyConcepts = []string{"service discovery", "load balancing"}

	chunks := c.Chunk(doc)

	insights := chunksOfType(chunks, domain.ChunkInsight)
	require.Len(t, insights, 1)
	assert.Equal(t, "Key concepts: service discovery, load balancing", insights[0].Content)
	assert.Equal(t, 1, insights[0].Type.Priority())
}

func TestChunk_SummaryOnlyDocument(t *testing.T) {
	// A document whose body is empty but whose enrichment carries a
	// summary still produces the summary chunk.
	c := New()
	doc := testDocument("")
	doc.Meta.Summary = "Short summary."

	chunks := c.Chunk(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.ChunkSummary, chunks[0].Type)
}

func TestChunk_CodeFenceExtraction(t *testing.T) {
	c := New()
	doc := testDocument("Intro.\n\n```go\nfunc main() {}\n```\n\nOutro.")

	chunks := c.Chunk(doc)

	code := chunksOfType(chunks, domain.ChunkCode)
	require.Len(t, code, 1)
	assert.Equal(t, "func main() {}", code[0].Content)
	assert.Equal(t, "go", code[0].Language)
	assert.Equal(t, 2, code[0].Type.Priority())

	// The fence must not leak into the prose sections.
	for _, section := range chunksOfType(chunks, domain.ChunkSection) {
		assert.NotContains(t, section.Content, "func main")
	}
}

func TestChunk_CodeFenceLanguages(t *testing.T) {
	tests := []struct {
		name     string
		fence    string
		expected string
	}{
		{"tagged", "```python\nprint('hi')\n```", "python"},
		{"uppercase tag", "```SQL\nSELECT 1;\n```", "sql"},
		{"untagged", "```\nls -la\n```", "unknown"},
		{"c sharp", "```c#\nvar x = 1;\n```", "c#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			chunks := c.Chunk(testDocument(tt.fence))
			code := chunksOfType(chunks, domain.ChunkCode)
			require.Len(t, code, 1)
			assert.Equal(t, tt.expected, code[0].Language)
		})
	}
}

func TestChunk_EmptyCodeFenceSkipped(t *testing.T) {
	c := New()
	chunks := c.Chunk(testDocument("Text.\n\n```go\n\n```\n\nMore text."))
	assert.Empty(t, chunksOfType(chunks, domain.ChunkCode))
}

func TestChunk_MultipleCodeFencesKeepOrder(t *testing.T) {
	c := New()
	doc := testDocument("```go\nfirst\n```\n\n```rust\nsecond\n```")

	code := chunksOfType(c.Chunk(doc), domain.ChunkCode)
	require.Len(t, code, 2)
	assert.Equal(t, "first", code[0].Content)
	assert.Equal(t, "second", code[1].Content)
	assert.NotEqual(t, code[0].ID, code[1].ID)
}

func TestChunk_SectionsSplitOnHeaders(t *testing.T) {
	c := New()
	doc := testDocument("Preamble text.\n\n# First\n\nAlpha.\n\n## Second\n\nBeta.")

	sections := chunksOfType(c.Chunk(doc), domain.ChunkSection)
	require.Len(t, sections, 3)
	assert.Equal(t, "Preamble text.", sections[0].Content)
	assert.True(t, strings.HasPrefix(sections[1].Content, "# First"))
	assert.True(t, strings.HasPrefix(sections[2].Content, "## Second"))
}

func TestChunk_NoHeadersSingleSection(t *testing.T) {
	c := New()
	doc := testDocument("Just a short paragraph with no headers at all.")

	sections := chunksOfType(c.Chunk(doc), domain.ChunkSection)
	require.Len(t, sections, 1)
	assert.Equal(t, "Just a short paragraph with no headers at all.", sections[0].Content)
}

func TestChunk_OversizedSectionSplitsOnParagraphs(t *testing.T) {
	c := New(WithMaxChunkSize(100), WithMaxFullDocSize(8000))
	para := strings.Repeat("word ", 15) // ~75 bytes
	doc := testDocument(para + "\n\n" + para + "\n\n" + para)

	sections := chunksOfType(c.Chunk(doc), domain.ChunkSection)
	require.Greater(t, len(sections), 1)
	for _, s := range sections {
		assert.LessOrEqual(t, len(s.Content), 100)
	}
}

func TestChunk_OversizedSentenceHardSplit(t *testing.T) {
	c := New(WithMaxChunkSize(50), WithMaxFullDocSize(8000))
	doc := testDocument(strings.Repeat("x", 180)) // no sentence boundaries

	sections := chunksOfType(c.Chunk(doc), domain.ChunkSection)
	require.NotEmpty(t, sections)
	for _, s := range sections {
		assert.LessOrEqual(t, len(s.Content), 50)
	}
}

func TestChunk_HardSplitRespectsRuneBoundaries(t *testing.T) {
	c := New(WithMaxChunkSize(10), WithMaxFullDocSize(8000))
	doc := testDocument(strings.Repeat("é", 40))

	for _, ch := range c.Chunk(doc) {
		assert.True(t, len(ch.Content) <= 10 || ch.Type == domain.ChunkFullDocument)
		assert.True(t, isValidUTF8(ch.Content), "chunk content cut mid-rune")
	}
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "") == s
}

func TestChunk_FullDocumentChunk(t *testing.T) {
	c := New()
	doc := testDocument("A short document body.")

	full := chunksOfType(c.Chunk(doc), domain.ChunkFullDocument)
	require.Len(t, full, 1)
	assert.Equal(t, "A short document body.", full[0].Content)
	assert.False(t, full[0].Truncated)
	assert.Equal(t, 3, full[0].Type.Priority())
}

func TestChunk_FullDocumentTruncated(t *testing.T) {
	c := New(WithMaxChunkSize(100), WithMaxFullDocSize(200))
	doc := testDocument(strings.Repeat("a", 500))

	full := chunksOfType(c.Chunk(doc), domain.ChunkFullDocument)
	require.Len(t, full, 1)
	assert.Len(t, full[0].Content, 200)
	assert.True(t, full[0].Truncated)
}

func TestChunk_Base64ImageStripped(t *testing.T) {
	c := New()
	doc := testDocument("Before.\n\n![diagram](data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==)\n\nAfter.")

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.NotContains(t, ch.Content, "base64")
	}

	full := chunksOfType(chunks, domain.ChunkFullDocument)
	require.Len(t, full, 1)
	assert.Contains(t, full[0].Content, "[image: diagram]")
}

func TestChunk_BareDataURIStripped(t *testing.T) {
	c := New()
	payload := strings.Repeat("QUJD", 32)
	doc := testDocument("See data:application/octet-stream;base64," + payload + " inline.")

	full := chunksOfType(c.Chunk(doc), domain.ChunkFullDocument)
	require.Len(t, full, 1)
	assert.NotContains(t, full[0].Content, payload)
	assert.Contains(t, full[0].Content, "[binary data removed]")
}

func TestChunk_Deterministic(t *testing.T) {
	c := New()
	doc := testDocument("# Title\n\nBody text.\n\n```go\ncode\n```")
	doc.Meta.Summary = "Summary."

	first := c.Chunk(doc)
	second := c.Chunk(doc)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].Type, second[i].Type)
	}
}

func TestChunk_OrderingByPriority(t *testing.T) {
	c := New()
	doc := testDocument("# Header\n\nBody.\n\n```go\ncode\n```")
	doc.Meta.Summary = "Summary."
	doc.Meta.KeyConcepts = []string{"concept"}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)

	last := 0
	for _, ch := range chunks {
		p := ch.Type.Priority()
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	assert.Equal(t, domain.ChunkFullDocument, chunks[len(chunks)-1].Type)
}

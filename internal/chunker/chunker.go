// Package chunker splits captured documents into prioritised retrieval units.
//
// A document yields, in order: priority-1 chunks for the enrichment summary
// and key concepts, priority-2 chunks for fenced code blocks and header
// sections, and a single capped priority-3 chunk holding the full cleaned
// body. Chunking is pure and deterministic: the same document always
// produces the same chunks with the same IDs.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/logger"
)

// DefaultMaxChunkSize is the default maximum section/insight size in bytes.
const DefaultMaxChunkSize = 2000

// DefaultMaxFullDocSize is the default cap on the full-document chunk.
const DefaultMaxFullDocSize = 8000

// Chunker splits documents into chunks. The zero value is not usable;
// construct with New.
type Chunker struct {
	maxChunkSize   int
	maxFullDocSize int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxChunkSize sets the maximum size of section and insight chunks.
func WithMaxChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxChunkSize = size
		}
	}
}

// WithMaxFullDocSize sets the cap on the full-document chunk.
func WithMaxFullDocSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxFullDocSize = size
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChunkSize:   DefaultMaxChunkSize,
		maxFullDocSize: DefaultMaxFullDocSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxFullDocSize < c.maxChunkSize {
		c.maxFullDocSize = c.maxChunkSize
	}
	return c
}

var (
	// base64Image matches markdown images with inline data URIs.
	base64Image = regexp.MustCompile(`!\[([^\]]*)\]\(data:[^;)]+;base64,[^)]*\)`)

	// bareDataURI matches inline data URIs outside image syntax.
	bareDataURI = regexp.MustCompile(`data:[a-zA-Z0-9/+.-]+;base64,[A-Za-z0-9+/=]{64,}`)

	// codeFence matches fenced code blocks with an optional language tag.
	codeFence = regexp.MustCompile("(?s)```([a-zA-Z0-9_+#.-]*)[ \t]*\n(.*?)```")

	// headerLine matches markdown headers at line start.
	headerLine = regexp.MustCompile(`(?m)^#{1,6}[ \t]+.*$`)
)

// Chunk splits a document into an ordered sequence of chunks.
// An empty document yields zero chunks and a warning, not an error.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	body := strings.TrimSpace(doc.Content)
	if body == "" && doc.Meta.Summary == "" {
		logger.Warn("document %s has no content, producing no chunks", doc.ID)
		return nil
	}

	now := time.Now().UTC()
	var chunks []domain.Chunk

	// Binary payloads are never chunked or embedded; keep a placeholder
	// carrying the original alt text so the reference survives.
	body = base64Image.ReplaceAllString(body, "[image: $1]")
	body = bareDataURI.ReplaceAllString(body, "[binary data removed]")

	chunks = append(chunks, c.insightChunks(doc, now)...)
	code, prose := c.extractCode(doc, body, now)
	chunks = append(chunks, code...)
	chunks = append(chunks, c.sectionChunks(doc, prose, now)...)

	if full := c.fullDocumentChunk(doc, body, now); full != nil {
		chunks = append(chunks, *full)
	}

	logger.Debug("document %s: %d chunks", doc.ID, len(chunks))
	return chunks
}

// insightChunks emits priority-1 chunks from the enrichment metadata,
// one chunk per distinct insight field.
func (c *Chunker) insightChunks(doc domain.Document, now time.Time) []domain.Chunk {
	var chunks []domain.Chunk

	if summary := strings.TrimSpace(doc.Meta.Summary); summary != "" {
		content := truncate(summary, c.maxChunkSize)
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, domain.ChunkSummary, 0, content),
			DocumentID: doc.ID,
			Type:       domain.ChunkSummary,
			Content:    content,
			CreatedAt:  now,
		})
	}

	if len(doc.Meta.KeyConcepts) > 0 {
		content := truncate(fmt.Sprintf("Key concepts: %s",
			strings.Join(doc.Meta.KeyConcepts, ", ")), c.maxChunkSize)
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, domain.ChunkInsight, 0, content),
			DocumentID: doc.ID,
			Type:       domain.ChunkInsight,
			Content:    content,
			CreatedAt:  now,
		})
	}

	return chunks
}

// extractCode pulls fenced code blocks out as priority-2 chunks and returns
// the remaining prose with the fences removed.
func (c *Chunker) extractCode(doc domain.Document, body string, now time.Time) ([]domain.Chunk, string) {
	var chunks []domain.Chunk
	ordinal := 0

	prose := codeFence.ReplaceAllStringFunc(body, func(fence string) string {
		m := codeFence.FindStringSubmatch(fence)
		lang := strings.ToLower(strings.TrimSpace(m[1]))
		if lang == "" {
			lang = "unknown"
		}
		code := strings.TrimSpace(m[2])
		if code == "" {
			return ""
		}

		content := truncate(code, c.maxChunkSize)
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, domain.ChunkCode, ordinal, content),
			DocumentID: doc.ID,
			Type:       domain.ChunkCode,
			Content:    content,
			Language:   lang,
			CreatedAt:  now,
		})
		ordinal++
		return ""
	})

	return chunks, prose
}

// sectionChunks splits prose on markdown headers into priority-2 chunks.
// A document without headers yields a single chunk holding the whole body.
func (c *Chunker) sectionChunks(doc domain.Document, prose string, now time.Time) []domain.Chunk {
	prose = strings.TrimSpace(prose)
	if prose == "" {
		return nil
	}

	sections := splitOnHeaders(prose)

	var chunks []domain.Chunk
	ordinal := 0
	for _, section := range sections {
		for _, part := range splitOversized(section, c.maxChunkSize) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				ID:         domain.ChunkID(doc.ID, domain.ChunkSection, ordinal, part),
				DocumentID: doc.ID,
				Type:       domain.ChunkSection,
				Content:    part,
				CreatedAt:  now,
			})
			ordinal++
		}
	}
	return chunks
}

// fullDocumentChunk emits the single priority-3 chunk with the cleaned body.
// Oversized bodies are truncated, never dropped, and the cut is flagged.
func (c *Chunker) fullDocumentChunk(doc domain.Document, body string, now time.Time) *domain.Chunk {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	truncated := len(body) > c.maxFullDocSize
	content := truncate(body, c.maxFullDocSize)

	return &domain.Chunk{
		ID:         domain.ChunkID(doc.ID, domain.ChunkFullDocument, 0, content),
		DocumentID: doc.ID,
		Type:       domain.ChunkFullDocument,
		Content:    content,
		Truncated:  truncated,
		CreatedAt:  now,
	}
}

// splitOnHeaders splits prose into sections, each starting at a header line.
// Text before the first header forms its own section.
func splitOnHeaders(prose string) []string {
	locs := headerLine.FindAllStringIndex(prose, -1)
	if len(locs) == 0 {
		return []string{prose}
	}

	var sections []string
	if locs[0][0] > 0 {
		sections = append(sections, prose[:locs[0][0]])
	}
	for i, loc := range locs {
		end := len(prose)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, prose[loc[0]:end])
	}
	return sections
}

// splitOversized splits a section that exceeds the size limit, preferring
// paragraph boundaries, then sentence boundaries. Only a single sentence
// longer than the limit is ever cut mid-sentence.
func splitOversized(section string, limit int) []string {
	section = strings.TrimSpace(section)
	if len(section) <= limit {
		return []string{section}
	}

	var parts []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > limit {
			flush()
		}

		if len(para) > limit {
			flush()
			for _, sentence := range splitSentences(para) {
				if current.Len() > 0 && current.Len()+len(sentence)+1 > limit {
					flush()
				}
				if len(sentence) > limit {
					flush()
					parts = append(parts, hardSplit(sentence, limit)...)
					continue
				}
				if current.Len() > 0 {
					current.WriteByte(' ')
				}
				current.WriteString(sentence)
			}
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return parts
}

// splitSentences splits text on common sentence terminators.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// hardSplit cuts text at the limit on rune boundaries. Last resort for a
// single sentence longer than the chunk limit.
func hardSplit(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// truncate cuts s at limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Metadata is the structured header captured alongside a document.
// The field set mirrors the frontmatter written by the capture tool.
type Metadata struct {
	// Title is the human-readable title.
	Title string

	// Source is the original location (URL or file path).
	Source string

	// Published is when the document was originally published.
	// Zero when the capture tool could not determine it.
	Published time.Time

	// Captured is when the document was fetched and processed.
	Captured time.Time

	// Domain is the hostname the document was captured from.
	Domain string

	// Author is the document author, or "Unknown".
	Author string

	// Category is the broad classification (e.g. "programming").
	Category string

	// Tags are lowercase hyphenated classification terms.
	Tags []string

	// Technologies lists frameworks, libraries and tools mentioned.
	Technologies []string

	// Languages lists programming languages only, not frameworks.
	Languages []string

	// KeyConcepts lists the main technical concepts or patterns.
	KeyConcepts []string

	// HasCodeExamples reports whether the document contains code.
	HasCodeExamples bool

	// Difficulty is "beginner", "intermediate", "advanced" or "unknown".
	Difficulty string

	// Summary is the free-text enrichment summary.
	Summary string
}

// HasTag reports whether the metadata carries the given tag.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Document represents a captured document awaiting chunking.
// Documents are immutable once ingested.
type Document struct {
	// ID is the stable identifier, derived from the source URI.
	ID string

	// Content is the full markdown body, without the metadata header.
	Content string

	// Meta is the parsed metadata header.
	Meta Metadata
}

// DocumentID derives a stable document identifier from a source URI.
// The same URI always yields the same ID, so reprocessing a capture
// never produces a second document.
func DocumentID(uri string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(uri)))
	return hex.EncodeToString(sum[:16])
}

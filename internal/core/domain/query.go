package domain

import (
	"strings"
	"time"
)

// Predicate is an optional conjunction of metadata constraints applied
// during search. The zero value (or a nil pointer) matches everything.
type Predicate struct {
	// Categories restricts results to entries whose category is in the set.
	Categories []string

	// Tags requires a non-empty intersection with the entry's tags.
	Tags []string

	// PublishedFrom and PublishedTo bound the publication date (inclusive).
	// A zero bound is open.
	PublishedFrom time.Time
	PublishedTo   time.Time
}

// IsEmpty reports whether the predicate constrains nothing.
func (p *Predicate) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Categories) == 0 && len(p.Tags) == 0 &&
		p.PublishedFrom.IsZero() && p.PublishedTo.IsZero()
}

// Matches evaluates the predicate against denormalized entry metadata.
func (p *Predicate) Matches(category string, tags []string, published time.Time) bool {
	if p.IsEmpty() {
		return true
	}

	if len(p.Categories) > 0 {
		found := false
		for _, c := range p.Categories {
			if strings.EqualFold(c, category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.Tags) > 0 && !intersects(p.Tags, tags) {
		return false
	}

	if !p.PublishedFrom.IsZero() && published.Before(p.PublishedFrom) {
		return false
	}
	if !p.PublishedTo.IsZero() && published.After(p.PublishedTo) {
		return false
	}

	return true
}

// intersects reports whether the entry's tags satisfy any required tag.
func intersects(required, have []string) bool {
	m := Metadata{Tags: have}
	for _, r := range required {
		if m.HasTag(r) {
			return true
		}
	}
	return false
}

// QueryOptions configures a retrieval query.
type QueryOptions struct {
	// K is the maximum number of results (default 10).
	K int

	// MinSimilarity discards results scoring below the threshold.
	MinSimilarity float64

	// Predicate optionally constrains results by metadata.
	Predicate *Predicate
}

// RetrievedChunk is a single scored search hit.
type RetrievedChunk struct {
	// Chunk is the matched chunk, hydrated from the document store.
	Chunk Chunk

	// Score is the cosine similarity to the query (higher is better).
	Score float64
}

// Answer is the result of a full retrieval + generation round trip.
type Answer struct {
	// Text is the generation collaborator's response, treated as opaque.
	Text string

	// Context holds the ranked chunks handed to the collaborator.
	Context []RetrievedChunk

	// GenerationLatency is how long the collaborator took.
	GenerationLatency time.Duration
}

package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strata-search/strata/internal/core/domain"
)

// frontmatter mirrors the YAML header the capture tool writes.
type frontmatter struct {
	Title         string   `yaml:"title"`
	Source        string   `yaml:"source"`
	DatePublished string   `yaml:"date_published"`
	DateCaptured  string   `yaml:"date_captured"`
	Domain        string   `yaml:"domain"`
	Author        string   `yaml:"author"`
	Category      string   `yaml:"category"`
	Technologies  []string `yaml:"technologies"`
	Languages     []string `yaml:"programming_languages"`
	Tags          []string `yaml:"tags"`
	KeyConcepts   []string `yaml:"key_concepts"`
	CodeExamples  bool     `yaml:"code_examples"`
	Difficulty    string   `yaml:"difficulty_level"`
	Summary       string   `yaml:"summary"`
}

var frontmatterDelim = []byte("---")

// parseFrontmatter splits a captured file into its YAML header and body.
// A file without a header is a malformed capture.
func parseFrontmatter(data []byte) (*domain.Metadata, string, error) {
	trimmed := bytes.TrimLeft(data, "\ufeff\n\r ")
	if !bytes.HasPrefix(trimmed, frontmatterDelim) {
		return nil, "", fmt.Errorf("%w: missing frontmatter header", domain.ErrInvalidInput)
	}

	rest := trimmed[len(frontmatterDelim):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, "", fmt.Errorf("%w: unterminated frontmatter header", domain.ErrInvalidInput)
	}

	var fm frontmatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, "", fmt.Errorf("%w: parsing frontmatter: %v", domain.ErrInvalidInput, err)
	}

	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}

	meta := &domain.Metadata{
		Title:           fm.Title,
		Source:          fm.Source,
		Published:       parseDate(fm.DatePublished),
		Captured:        parseDate(fm.DateCaptured),
		Domain:          fm.Domain,
		Author:          fm.Author,
		Category:        fm.Category,
		Tags:            fm.Tags,
		Technologies:    fm.Technologies,
		Languages:       fm.Languages,
		KeyConcepts:     fm.KeyConcepts,
		HasCodeExamples: fm.CodeExamples,
		Difficulty:      fm.Difficulty,
		Summary:         strings.TrimSpace(fm.Summary),
	}
	return meta, strings.TrimSpace(string(body)), nil
}

// dateLayouts covers the formats the capture tool emits.
// "unknown" and empty values yield a zero time.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate parses a capture-tool date, tolerating its loose formats.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unknown") {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

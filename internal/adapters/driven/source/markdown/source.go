// Package markdown loads captured documents from a directory of markdown
// files carrying the capture tool's YAML frontmatter header. The header is
// parsed here; the core never sees the raw format.
package markdown

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/logger"
)

// Ensure Source implements the interface.
var _ driven.DocumentSource = (*Source)(nil)

// Source reads captured markdown documents from a directory tree.
type Source struct {
	dir     string
	watcher *fsnotify.Watcher
}

// New creates a source over the given directory.
func New(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open capture directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
	}
	return &Source{dir: dir}, nil
}

// Load streams every markdown document under the directory.
// A file that fails to parse is reported on the error channel and skipped.
func (s *Source) Load(ctx context.Context) (<-chan domain.Document, <-chan error) {
	docs := make(chan domain.Document)
	errs := make(chan error, 1)

	go func() {
		defer close(docs)
		defer close(errs)

		walkErr := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !isMarkdown(path) {
				return nil
			}

			doc, perr := s.loadFile(path)
			if perr != nil {
				select {
				case errs <- fmt.Errorf("%s: %w", path, perr):
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}

			select {
			case docs <- *doc:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if walkErr != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("walking %s: %w", s.dir, walkErr)
		}
	}()

	return docs, errs
}

// Watch streams documents as markdown files appear or change.
func (s *Source) Watch(ctx context.Context) (<-chan domain.Document, <-chan error) {
	docs := make(chan domain.Document)
	errs := make(chan error, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(docs)
		errs <- fmt.Errorf("create watcher: %w", err)
		close(errs)
		return docs, errs
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		close(docs)
		errs <- fmt.Errorf("watch %s: %w", s.dir, err)
		close(errs)
		return docs, errs
	}
	s.watcher = watcher

	go func() {
		defer close(docs)
		defer close(errs)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if !isMarkdown(event.Name) {
					continue
				}

				logger.Debug("capture directory event: %s %s", event.Op, event.Name)
				doc, perr := s.loadFile(event.Name)
				if perr != nil {
					select {
					case errs <- fmt.Errorf("%s: %w", event.Name, perr):
					case <-ctx.Done():
						return
					}
					continue
				}

				select {
				case docs <- *doc:
				case <-ctx.Done():
					return
				}

			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- fmt.Errorf("watcher: %w", werr):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return docs, errs
}

// loadFile parses one captured markdown file into a Document.
func (s *Source) loadFile(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	meta, body, err := parseFrontmatter(data)
	if err != nil {
		return nil, err
	}

	uri := meta.Source
	if uri == "" {
		uri = path
	}

	return &domain.Document{
		ID:      domain.DocumentID(uri),
		Content: body,
		Meta:    *meta,
	}, nil
}

// isMarkdown reports whether path looks like a captured markdown file.
func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Close stops any active watcher.
func (s *Source) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Package knowledge loads the plain-text document corpus that backs
// retrieval. Each .txt file under the configured directory becomes one
// Document; the file name (without extension) is the document ID.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/koopa0/sage/internal/log"
)

// ErrDirNotFound indicates the knowledge directory does not exist or
// cannot be opened at all.
var ErrDirNotFound = errors.New("knowledge directory not found")

// Document is a single unit of knowledge-base content.
type Document struct {
	// ID is the file name without the .txt extension. Stable across
	// reloads as long as the file keeps its name.
	ID string

	// Name is the original file name.
	Name string

	// Content is the full file content.
	Content string
}

// Loader reads documents from a directory.
type Loader struct {
	dir    string
	logger log.Logger
}

// NewLoader creates a loader for the given directory.
func NewLoader(dir string, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Loader{dir: dir, logger: logger.With("component", "knowledge")}
}

// Load reads every .txt file in the directory, sorted by document ID.
//
// A missing directory is a hard error. An unreadable individual file
// is logged and skipped so one bad file cannot take down the whole
// corpus. An empty directory yields an empty, valid corpus.
func (l *Loader) Load() ([]Document, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirNotFound, l.dir)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrDirNotFound, l.dir, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable document", "file", entry.Name(), "error", err)
			continue
		}

		docs = append(docs, Document{
			ID:      strings.TrimSuffix(entry.Name(), ".txt"),
			Name:    entry.Name(),
			Content: string(data),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	l.logger.Info("knowledge base loaded", "dir", l.dir, "documents", len(docs))
	return docs, nil
}

// Dir returns the directory this loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

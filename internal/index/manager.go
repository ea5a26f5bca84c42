package index

import (
	"fmt"
	"sync/atomic"

	"github.com/koopa0/sage/internal/knowledge"
	"github.com/koopa0/sage/internal/log"
)

// Manager owns the live index snapshot and rebuilds it on demand.
// Searches during a reload keep using the previous snapshot until the
// new one is swapped in, so readers never block and never see a
// half-built index.
type Manager struct {
	loader  *knowledge.Loader
	logger  log.Logger
	current atomic.Pointer[Index]
}

// NewManager builds the initial snapshot from the loader. Failing to
// load the corpus at startup is fatal.
func NewManager(loader *knowledge.Loader, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	m := &Manager{
		loader: loader,
		logger: logger.With("component", "index"),
	}
	if err := m.Reload(); err != nil {
		return nil, fmt.Errorf("building initial index: %w", err)
	}
	return m, nil
}

// Reload re-reads the corpus and atomically replaces the snapshot.
// On load failure the previous snapshot stays in service.
func (m *Manager) Reload() error {
	docs, err := m.loader.Load()
	if err != nil {
		return fmt.Errorf("reloading knowledge base: %w", err)
	}

	idx := Build(docs)
	m.current.Store(idx)
	m.logger.Info("index rebuilt", "documents", idx.Size())
	return nil
}

// Snapshot returns the current immutable index.
func (m *Manager) Snapshot() *Index {
	return m.current.Load()
}

// Search runs the query against the current snapshot.
func (m *Manager) Search(query string, k int) []Hit {
	return m.Snapshot().Search(query, k)
}

package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/embedding"
)

var (
	instancesMu sync.Mutex
	instances   = make(map[string]*Index)
)

// Acquire returns the shared Index for dir, opening it on first use. All
// callers in the process share one instance per directory so writes serialize
// through a single lock. Uses double-checked locking around the open.
func Acquire(dir string, embedder embedding.Embedder, batchSize int, logger *zap.Logger) (*Index, error) {
	instancesMu.Lock()
	if ix, ok := instances[dir]; ok {
		instancesMu.Unlock()
		return ix, nil
	}
	instancesMu.Unlock()

	// Open outside the lock; opening may be slow (vector load).
	ix, err := OpenIndex(dir, embedder, batchSize, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	instancesMu.Lock()
	defer instancesMu.Unlock()
	if existing, ok := instances[dir]; ok {
		// Lost the race; keep the first instance.
		_ = ix.Close()
		return existing, nil
	}
	instances[dir] = ix
	return ix, nil
}

// Release closes and forgets the shared Index for dir. Recovery calls this so
// the next Acquire reopens from whatever is now on disk.
func Release(dir string) error {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	ix, ok := instances[dir]
	if !ok {
		return nil
	}
	delete(instances, dir)
	return ix.Close()
}

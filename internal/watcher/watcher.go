// Package watcher turns filesystem changes under the watched document roots
// into ingestion jobs. Both roots (internal and external) are watched
// recursively with fsnotify; new subdirectories are picked up as they appear.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/ingest"
	"github.com/neuralstark/kbindex/internal/models"
)

// Sink receives ingestion jobs. Enqueue may refuse with ingest.ErrQueueFull,
// in which case the watcher processes the job synchronously so no event is
// dropped.
type Sink interface {
	Enqueue(models.IngestionJob) error
	ProcessSync(ctx context.Context, job models.IngestionJob) models.JobResult
}

// Watcher watches the document roots and dispatches jobs to a Sink.
type Watcher struct {
	roots      []string
	extensions []string
	sink       Sink
	watcher    *fsnotify.Watcher
	logger     *zap.Logger

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watcher events. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher over roots. Empty root entries are skipped.
// extensions filter which files produce jobs (empty = all).
func New(roots []string, extensions []string, sink Sink, opts ...Option) *Watcher {
	var cleaned []string
	for _, r := range roots {
		if r != "" {
			cleaned = append(cleaned, models.NormalizePath(r))
		}
	}
	w := &Watcher{
		roots:      cleaned,
		extensions: extensions,
		sink:       sink,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Roots that do not exist are created. Runs until ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.started = true
	for _, root := range w.roots {
		if err := w.addTreeLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	w.logger.Info("watcher started",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(ctx, path)
			return
		}
		if w.matchExtension(path) {
			w.dispatch(ctx, path, models.EventCreated)
		}
	case ev.Op.Has(fsnotify.Write):
		if w.matchExtension(path) {
			w.dispatch(ctx, path, models.EventModified)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if w.matchExtension(path) {
			w.dispatch(ctx, path, models.EventDeleted)
		}
	}
}

// dispatch enqueues a job, falling back to synchronous processing when the
// queue is full so bursts degrade to backpressure instead of lost events.
func (w *Watcher) dispatch(ctx context.Context, path string, event models.EventType) {
	job := ingest.NewJob(path, event)
	err := w.sink.Enqueue(job)
	if err == nil {
		w.logger.Debug("job enqueued",
			zap.String("path", path), zap.String("event", string(event)))
		return
	}
	if !errors.Is(err, ingest.ErrQueueFull) {
		w.logger.Error("enqueue failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Warn("queue full, processing synchronously", zap.String("path", path))
	w.sink.ProcessSync(ctx, job)
}

// handleNewDirectory watches a directory that appeared after Start and
// ingests any files already inside it.
func (w *Watcher) handleNewDirectory(ctx context.Context, dirPath string) {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := fw.Add(path); addErr != nil {
				w.logger.Warn("failed to watch new directory",
					zap.String("path", path), zap.Error(addErr))
			}
			return nil
		}
		if w.matchExtension(path) {
			w.dispatch(ctx, path, models.EventCreated)
		}
		return nil
	})
}

// SyncExisting ingests every matching file already present under the roots.
// Call after Start so documents predating the process get indexed.
func (w *Watcher) SyncExisting(ctx context.Context) {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if w.matchExtension(path) {
				w.dispatch(ctx, path, models.EventCreated)
			}
			return nil
		})
	}
}

// Roots returns the watched root directories.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

func (w *Watcher) addTreeLocked(root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		if root == clean || inDir(root, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.started || w.watcher == nil {
			return
		}
		close(w.done)
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
	})
}

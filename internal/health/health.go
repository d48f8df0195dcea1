// Package health watches over the index on disk: periodic checks, timestamped
// backups with retention, and automatic recovery from detected corruption.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/store"
)

// Corruption classes recognized by auto recovery. Issue strings produced by
// Check are prefixed with one of these so Run can dispatch.
const (
	CorruptionEmptyFiles        = "empty_files"
	CorruptionConnectionFailure = "connection_failure"
	CorruptionIndex             = "index_corruption"
	CorruptionUnknown           = "unknown"
)

// Manager runs health checks and recovery for one index directory.
type Manager struct {
	indexDir   string
	backupDir  string
	watchRoots []string
	retention  int
	index      *store.Index
	journal    *Journal
	logger     *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a health manager. index may be nil when only backup and
// restore operations are needed (recovery CLI).
func NewManager(indexDir, backupDir string, watchRoots []string, retention int, index *store.Index, opts ...Option) *Manager {
	if retention <= 0 {
		retention = 10
	}
	m := &Manager{
		indexDir:   indexDir,
		backupDir:  backupDir,
		watchRoots: watchRoots,
		retention:  retention,
		index:      index,
		journal:    NewJournal(filepath.Join(filepath.Dir(indexDir), store.JournalFile)),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check inspects the index directory, the watched roots and the store, and
// returns a report. Issues are prefixed with their corruption class.
func (m *Manager) Check(ctx context.Context) models.HealthReport {
	report := models.HealthReport{
		Timestamp: time.Now(),
		Healthy:   true,
		Stats:     make(map[string]string),
	}

	info, err := os.Stat(m.indexDir)
	switch {
	case os.IsNotExist(err):
		report.AddIssue(fmt.Sprintf("%s: index directory missing: %s", CorruptionUnknown, m.indexDir))
	case err != nil:
		report.AddIssue(fmt.Sprintf("%s: index directory unreadable: %v", CorruptionUnknown, err))
	case !info.IsDir():
		report.AddIssue(fmt.Sprintf("%s: index path is not a directory: %s", CorruptionUnknown, m.indexDir))
	default:
		if err := checkWritable(m.indexDir); err != nil {
			report.AddIssue(fmt.Sprintf("%s: index directory not writable: %v", CorruptionUnknown, err))
		}
		empty, err := zeroByteFiles(m.indexDir)
		if err != nil {
			report.AddWarning(fmt.Sprintf("could not scan for empty files: %v", err))
		} else if len(empty) > 0 {
			report.AddIssue(fmt.Sprintf("%s: %d zero-byte index files", CorruptionEmptyFiles, len(empty)))
		}
	}

	for _, root := range m.watchRoots {
		if root == "" {
			continue
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			report.AddWarning(fmt.Sprintf("watch root unavailable: %s", root))
		}
	}

	if m.index != nil {
		if err := m.index.Ping(ctx); err != nil {
			report.AddIssue(fmt.Sprintf("%s: store unreachable: %v", CorruptionConnectionFailure, err))
		} else {
			count, err := m.index.Count(ctx)
			if err != nil {
				report.AddIssue(fmt.Sprintf("%s: trivial query failed: %v", CorruptionConnectionFailure, err))
			} else {
				report.Stats["chunk_count"] = strconv.Itoa(count)
				report.Stats["vector_count"] = strconv.Itoa(m.index.VectorCount())
				if count != m.index.VectorCount() {
					report.AddIssue(fmt.Sprintf("%s: chunk/vector count mismatch: %d vs %d",
						CorruptionIndex, count, m.index.VectorCount()))
				}
				// A populated index must have both artifacts on disk.
				if count > 0 {
					for _, name := range []string{store.ChunkDBFile, store.VectorFile} {
						if _, err := os.Stat(filepath.Join(m.indexDir, name)); err != nil {
							report.AddIssue(fmt.Sprintf("%s: missing index artifact: %s",
								CorruptionIndex, name))
						}
					}
				}
			}
		}
	}

	if backups, err := m.ListBackups(); err == nil {
		report.Stats["backups"] = strconv.Itoa(len(backups))
	}

	m.logger.Info("health check complete",
		zap.Bool("healthy", report.Healthy),
		zap.Int("issues", len(report.Issues)),
		zap.Int("warnings", len(report.Warnings)))
	return report
}

// Run performs a check every interval and triggers auto recovery when issues
// are found. Blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := m.Check(ctx)
			if report.Healthy {
				continue
			}
			corruption := classify(report.Issues)
			m.logger.Warn("unhealthy index, starting auto recovery",
				zap.String("corruption_type", corruption),
				zap.Strings("issues", report.Issues))
			if _, err := m.AutoRecover(ctx, corruption, report.Issues[0]); err != nil {
				m.logger.Error("auto recovery failed", zap.Error(err))
			}
		}
	}
}

// classify maps the first recognized issue prefix to a corruption class.
func classify(issues []string) string {
	for _, class := range []string{CorruptionEmptyFiles, CorruptionConnectionFailure, CorruptionIndex} {
		for _, issue := range issues {
			if len(issue) >= len(class) && issue[:len(class)] == class {
				return class
			}
		}
	}
	return CorruptionUnknown
}

func checkWritable(dir string) error {
	probe := filepath.Join(dir, ".health_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// zeroByteFiles lists regular files of size zero directly under dir.
func zeroByteFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var empty []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		// WAL sidecars are legitimately empty after a checkpoint.
		if ext := filepath.Ext(e.Name()); ext == ".db-wal" || ext == ".db-shm" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() == 0 {
			empty = append(empty, filepath.Join(dir, e.Name()))
		}
	}
	return empty, nil
}

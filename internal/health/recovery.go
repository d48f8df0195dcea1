package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/store"
)

// AutoRecover repairs the index directory for the given corruption class. A
// pre_recovery backup is always taken first, whatever the class. After repair
// the shared index handle is released so the next open reads the repaired
// state. The outcome is appended to the recovery journal.
func (m *Manager) AutoRecover(ctx context.Context, corruptionType, reason string) (models.RecoveryEvent, error) {
	event := models.RecoveryEvent{
		Timestamp:      time.Now(),
		Action:         "auto_recovery",
		CorruptionType: corruptionType,
		Reason:         reason,
	}
	if err := ctx.Err(); err != nil {
		event.Success = false
		return event, err
	}

	backup, err := m.CreateBackup("pre_recovery")
	if err != nil {
		event.Success = false
		m.journal.Append(event)
		return event, fmt.Errorf("pre-recovery backup: %w", err)
	}
	event.BackupPath = backup.Path

	if err := store.Release(m.indexDir); err != nil {
		m.logger.Warn("index release before recovery failed", zap.Error(err))
	}

	switch corruptionType {
	case CorruptionEmptyFiles:
		err = m.removeEmptyFiles()
	case CorruptionConnectionFailure:
		err = m.removeDatabaseFiles()
	case CorruptionIndex:
		err = m.removeVectorFiles()
	default:
		err = m.rebuildIndexDir()
	}

	event.Success = err == nil
	m.journal.Append(event)
	if err != nil {
		m.logger.Error("recovery action failed",
			zap.String("corruption_type", corruptionType), zap.Error(err))
		return event, err
	}
	m.logger.Info("recovery complete",
		zap.String("corruption_type", corruptionType),
		zap.String("backup", backup.Name))
	return event, nil
}

// removeEmptyFiles deletes zero-byte files from the index directory.
func (m *Manager) removeEmptyFiles() error {
	empty, err := zeroByteFiles(m.indexDir)
	if err != nil {
		return err
	}
	for _, path := range empty {
		if err := os.Remove(path); err != nil {
			return err
		}
		m.logger.Info("empty file removed", zap.String("path", path))
	}
	return nil
}

// removeDatabaseFiles deletes the chunk database and its WAL sidecars so a
// fresh database is created on next open. Vectors stay; chunks are rebuilt by
// re-ingestion.
func (m *Manager) removeDatabaseFiles() error {
	for _, name := range []string{
		store.ChunkDBFile,
		store.ChunkDBFile + "-wal",
		store.ChunkDBFile + "-shm",
	} {
		path := filepath.Join(m.indexDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// removeVectorFiles deletes every .bin file in the index directory.
func (m *Manager) removeVectorFiles() error {
	matches, err := filepath.Glob(filepath.Join(m.indexDir, "*.bin"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return err
		}
		m.logger.Info("vector file removed", zap.String("path", path))
	}
	return nil
}

// rebuildIndexDir wipes the index directory and recreates it empty.
func (m *Manager) rebuildIndexDir() error {
	if err := os.RemoveAll(m.indexDir); err != nil {
		return err
	}
	return os.MkdirAll(m.indexDir, 0755)
}

// Journal returns the recovery journal.
func (m *Manager) Journal() *Journal {
	return m.journal
}

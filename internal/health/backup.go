package health

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/models"
)

const backupPrefix = "backup_"

// CreateBackup copies the index directory into the backup directory under a
// timestamped, reason-tagged name, then prunes backups beyond the retention
// limit (oldest first by modification time).
func (m *Manager) CreateBackup(reason string) (models.BackupInfo, error) {
	if reason == "" {
		reason = "manual"
	}
	name := fmt.Sprintf("%s%s_%s", backupPrefix, time.Now().Format("20060102_150405"), sanitizeReason(reason))
	dst := filepath.Join(m.backupDir, name)

	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return models.BackupInfo{}, fmt.Errorf("create backup dir: %w", err)
	}
	if err := copyDir(m.indexDir, dst); err != nil {
		_ = os.RemoveAll(dst)
		return models.BackupInfo{}, fmt.Errorf("copy index: %w", err)
	}
	size, _ := dirSize(dst)
	info := models.BackupInfo{
		Name:      name,
		Path:      dst,
		Reason:    reason,
		CreatedAt: time.Now(),
		SizeBytes: size,
	}
	m.logger.Info("backup created",
		zap.String("name", name),
		zap.String("reason", reason),
		zap.Int64("size_bytes", size))

	if err := m.pruneBackups(); err != nil {
		m.logger.Warn("backup rotation failed", zap.Error(err))
	}
	return info, nil
}

// ListBackups returns the available backups sorted oldest first.
func (m *Manager) ListBackups() ([]models.BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var backups []models.BackupInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.backupDir, e.Name())
		size, _ := dirSize(path)
		backups = append(backups, models.BackupInfo{
			Name:      e.Name(),
			Path:      path,
			Reason:    reasonFromName(e.Name()),
			CreatedAt: fi.ModTime(),
			SizeBytes: size,
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].CreatedAt.Before(backups[j].CreatedAt) })
	return backups, nil
}

// RestoreFromBackup replaces the index directory with the named backup, or
// the most recent one when name is empty. The current state is saved as a
// pre_restore backup first. Returns the name of the backup restored.
func (m *Manager) RestoreFromBackup(name string) (string, error) {
	if name == "" {
		backups, err := m.ListBackups()
		if err != nil {
			return "", fmt.Errorf("list backups: %w", err)
		}
		if len(backups) == 0 {
			return "", fmt.Errorf("no backups available")
		}
		name = backups[len(backups)-1].Name
	}
	src := filepath.Join(m.backupDir, name)
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return "", fmt.Errorf("backup not found: %s", name)
	}

	if _, err := m.CreateBackup("pre_restore"); err != nil {
		return "", fmt.Errorf("pre-restore backup: %w", err)
	}
	if err := os.RemoveAll(m.indexDir); err != nil {
		return "", fmt.Errorf("clear index dir: %w", err)
	}
	if err := copyDir(src, m.indexDir); err != nil {
		return "", fmt.Errorf("restore copy: %w", err)
	}
	m.logger.Info("index restored from backup", zap.String("name", name))
	m.journal.Append(models.RecoveryEvent{
		Timestamp:  time.Now(),
		Action:     "restore_from_backup",
		BackupPath: src,
		Success:    true,
	})
	return name, nil
}

// pruneBackups deletes the oldest backups beyond the retention count.
func (m *Manager) pruneBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}
	for len(backups) > m.retention {
		oldest := backups[0]
		if err := os.RemoveAll(oldest.Path); err != nil {
			return err
		}
		m.logger.Info("old backup pruned", zap.String("name", oldest.Name))
		backups = backups[1:]
	}
	return nil
}

func sanitizeReason(reason string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, reason)
}

// reasonFromName recovers the reason tag from "backup_<date>_<time>_<reason>".
func reasonFromName(name string) string {
	parts := strings.SplitN(strings.TrimPrefix(name, backupPrefix), "_", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

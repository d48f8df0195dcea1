package health

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neuralstark/kbindex/internal/embedding"
	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/store"
)

func newTestManager(t *testing.T, index *store.Index) (*Manager, string) {
	t.Helper()
	base := t.TempDir()
	indexDir := filepath.Join(base, "index_store")
	if index != nil {
		indexDir = index.Dir()
	} else if err := os.MkdirAll(indexDir, 0755); err != nil {
		t.Fatal(err)
	}
	backupDir := filepath.Join(base, "index_backups")
	m := NewManager(indexDir, backupDir, nil, 10, index)
	return m, indexDir
}

func TestCheck_HealthyIndex(t *testing.T) {
	ix, err := store.OpenIndex(filepath.Join(t.TempDir(), "index_store"), embedding.NewMockEmbedder(8), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	m, _ := newTestManager(t, ix)

	report := m.Check(context.Background())
	if !report.Healthy {
		t.Fatalf("healthy index reported unhealthy: %v", report.Issues)
	}
	if report.Stats["chunk_count"] != "0" {
		t.Errorf("stats=%v", report.Stats)
	}
}

func TestCheck_FlagsZeroByteFiles(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	if err := os.WriteFile(filepath.Join(indexDir, "vectors.bin"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	report := m.Check(context.Background())
	if report.Healthy {
		t.Fatal("zero-byte file not flagged")
	}
	if classify(report.Issues) != CorruptionEmptyFiles {
		t.Errorf("classified as %s", classify(report.Issues))
	}
}

func TestCheck_FlagsMissingArtifact(t *testing.T) {
	ix, err := store.OpenIndex(filepath.Join(t.TempDir(), "index_store"), embedding.NewMockEmbedder(8), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	chunk := &models.Chunk{Text: "indexed", Source: "/docs/a.txt", FileName: "a.txt"}
	if err := ix.Upsert(context.Background(), []*models.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	m, indexDir := newTestManager(t, ix)
	if err := os.Remove(filepath.Join(indexDir, store.VectorFile)); err != nil {
		t.Fatal(err)
	}

	report := m.Check(context.Background())
	if report.Healthy {
		t.Fatal("missing vector file not flagged")
	}
	if classify(report.Issues) != CorruptionIndex {
		t.Errorf("classified as %s", classify(report.Issues))
	}
}

func TestCheck_MissingIndexDir(t *testing.T) {
	base := t.TempDir()
	m := NewManager(filepath.Join(base, "nope"), filepath.Join(base, "backups"), nil, 10, nil)
	report := m.Check(context.Background())
	if report.Healthy {
		t.Error("missing index dir not flagged")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		issues []string
		want   string
	}{
		{[]string{"empty_files: 2 zero-byte index files"}, CorruptionEmptyFiles},
		{[]string{"connection_failure: store unreachable"}, CorruptionConnectionFailure},
		{[]string{"index_corruption: count mismatch"}, CorruptionIndex},
		{[]string{"something odd"}, CorruptionUnknown},
		{nil, CorruptionUnknown},
	}
	for _, tt := range tests {
		if got := classify(tt.issues); got != tt.want {
			t.Errorf("classify(%v)=%s, want %s", tt.issues, got, tt.want)
		}
	}
}

func TestBackup_CreateListRestore(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	stateFile := filepath.Join(indexDir, "chunks.db")
	if err := os.WriteFile(stateFile, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := m.CreateBackup("scheduled check")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(info.Name, "backup_") || !strings.HasSuffix(info.Name, "scheduled_check") {
		t.Errorf("name=%s", info.Name)
	}
	if info.SizeBytes == 0 {
		t.Error("backup size not recorded")
	}

	// Corrupt the live file, then restore.
	if err := os.WriteFile(stateFile, []byte("damaged"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RestoreFromBackup(info.Name); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("restored content=%q", data)
	}

	// Restore must have left a pre_restore backup behind.
	backups, err := m.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, b := range backups {
		if b.Reason == "pre_restore" {
			found = true
		}
	}
	if !found {
		t.Errorf("no pre_restore backup in %v", backups)
	}
}

func TestBackup_RestoreLatestWhenUnnamed(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	stateFile := filepath.Join(indexDir, "chunks.db")
	if err := os.WriteFile(stateFile, []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateBackup("first"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stateFile, []byte("two"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateBackup("second"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stateFile, []byte("damaged"), 0644); err != nil {
		t.Fatal(err)
	}

	restored, err := m.RestoreFromBackup("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(restored, "second") {
		t.Errorf("restored=%s, want the most recent backup", restored)
	}
	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("restored content=%q", data)
	}
}

func TestBackup_RestoreLatestWhenUnnamed_NoBackups(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.RestoreFromBackup(""); err == nil {
		t.Error("expected error with no backups available")
	}
}

func TestBackup_RetentionPrunesOldest(t *testing.T) {
	base := t.TempDir()
	indexDir := filepath.Join(base, "index_store")
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(indexDir, "f"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(indexDir, filepath.Join(base, "backups"), nil, 3, nil)

	for _, reason := range []string{"r0", "r1", "r2", "r3", "r4"} {
		if _, err := m.CreateBackup(reason); err != nil {
			t.Fatal(err)
		}
	}
	backups, err := m.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 3 {
		t.Fatalf("retained %d backups, want 3", len(backups))
	}
	for _, b := range backups {
		if b.Reason == "r0" || b.Reason == "r1" {
			t.Errorf("oldest backup survived rotation: %s", b.Name)
		}
	}
}

func TestAutoRecover_AlwaysBacksUpFirst(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	if err := os.WriteFile(filepath.Join(indexDir, "f"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	event, err := m.AutoRecover(context.Background(), CorruptionUnknown, "test")
	if err != nil {
		t.Fatal(err)
	}
	if !event.Success || event.BackupPath == "" {
		t.Fatalf("event=%+v", event)
	}
	backups, _ := m.ListBackups()
	if len(backups) != 1 || backups[0].Reason != "pre_recovery" {
		t.Errorf("backups=%v", backups)
	}
	events, err := m.Journal().Events()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != "auto_recovery" {
		t.Errorf("journal=%v", events)
	}
}

func TestAutoRecover_EmptyFiles(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	empty := filepath.Join(indexDir, "vectors.bin")
	full := filepath.Join(indexDir, "chunks.db")
	os.WriteFile(empty, nil, 0644)
	os.WriteFile(full, []byte("data"), 0644)

	if _, err := m.AutoRecover(context.Background(), CorruptionEmptyFiles, "zero-byte files"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Error("empty file not removed")
	}
	if _, err := os.Stat(full); err != nil {
		t.Error("non-empty file should survive")
	}
}

func TestAutoRecover_ConnectionFailure(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	db := filepath.Join(indexDir, store.ChunkDBFile)
	vectors := filepath.Join(indexDir, store.VectorFile)
	os.WriteFile(db, []byte("db"), 0644)
	os.WriteFile(db+"-wal", []byte("wal"), 0644)
	os.WriteFile(vectors, []byte("vec"), 0644)

	if _, err := m.AutoRecover(context.Background(), CorruptionConnectionFailure, "unreachable"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(db); !os.IsNotExist(err) {
		t.Error("database file not removed")
	}
	if _, err := os.Stat(db + "-wal"); !os.IsNotExist(err) {
		t.Error("wal sidecar not removed")
	}
	if _, err := os.Stat(vectors); err != nil {
		t.Error("vector file should survive connection recovery")
	}
}

func TestAutoRecover_IndexCorruption(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	db := filepath.Join(indexDir, store.ChunkDBFile)
	vectors := filepath.Join(indexDir, store.VectorFile)
	os.WriteFile(db, []byte("db"), 0644)
	os.WriteFile(vectors, []byte("vec"), 0644)

	if _, err := m.AutoRecover(context.Background(), CorruptionIndex, "bad vectors"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(vectors); !os.IsNotExist(err) {
		t.Error("vector file not removed")
	}
	if _, err := os.Stat(db); err != nil {
		t.Error("database should survive vector recovery")
	}
}

func TestAutoRecover_DefaultWipes(t *testing.T) {
	m, indexDir := newTestManager(t, nil)
	os.WriteFile(filepath.Join(indexDir, "anything"), []byte("x"), 0644)

	if _, err := m.AutoRecover(context.Background(), "mystery", "unknown corruption"); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(indexDir)
	if err != nil {
		t.Fatalf("index dir not recreated: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("index dir not empty after wipe: %v", entries)
	}
}

func TestJournal_AppendRoundtrip(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "journal.json"))
	j.Append(models.RecoveryEvent{Action: "auto_recovery", Success: true})
	j.Append(models.RecoveryEvent{Action: "restore_from_backup", Success: false})

	events, err := j.Events()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events=%d", len(events))
	}
	if events[0].Action != "auto_recovery" || events[1].Success {
		t.Errorf("events=%v", events)
	}
}

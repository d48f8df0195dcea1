package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neuralstark/kbindex/internal/models"
)

func testChunk(source string, ordinal int, text string) *models.Chunk {
	return &models.Chunk{
		Text:       text,
		Source:     source,
		FileName:   filepath.Base(source),
		SourceType: models.SourceInternal,
		EventType:  models.EventCreated,
		Ordinal:    ordinal,
		ModTime:    time.Now(),
	}
}

func TestChunkStore_UpsertIdempotent(t *testing.T) {
	s, err := OpenChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	chunks := []*models.Chunk{
		testChunk("/docs/a.txt", 0, "first"),
		testChunk("/docs/a.txt", 1, "second"),
	}
	if err := s.UpsertChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	// Replaying the same write must not duplicate rows.
	chunks[0].Text = "first revised"
	if err := s.UpsertChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count=%d, want 2", n)
	}
	got, err := s.GetByKeys(ctx, []string{"/docs/a.txt#0"})
	if err != nil {
		t.Fatal(err)
	}
	if got["/docs/a.txt#0"].Text != "first revised" {
		t.Errorf("replay did not overwrite: %q", got["/docs/a.txt#0"].Text)
	}
}

func TestChunkStore_DeleteWhere(t *testing.T) {
	s, err := OpenChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.UpsertChunks(ctx, []*models.Chunk{
		testChunk("/docs/a.txt", 0, "a0"),
		testChunk("/docs/a.txt", 1, "a1"),
		testChunk("/docs/b.txt", 0, "b0"),
	}); err != nil {
		t.Fatal(err)
	}

	keys, err := s.DeleteWhere(ctx, BySource("/docs/a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("deleted keys=%v, want 2", keys)
	}
	n, _ := s.CountChunks(ctx)
	if n != 1 {
		t.Errorf("count=%d, want 1", n)
	}
	sources, err := s.Sources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0] != "/docs/b.txt" {
		t.Errorf("sources=%v", sources)
	}
}

func TestFilter_Validation(t *testing.T) {
	if _, _, err := (Filter{}).whereClause(); err == nil {
		t.Error("empty filter must be refused")
	}
	if _, _, err := (Filter{"text": "x"}).whereClause(); err == nil {
		t.Error("unknown column must be refused")
	}
	where, args, err := (Filter{"source": "/a", "event_type": "created"}).whereClause()
	if err != nil {
		t.Fatal(err)
	}
	if where != "event_type = ? AND source = ?" {
		t.Errorf("where=%q", where)
	}
	if len(args) != 2 {
		t.Errorf("args=%v", args)
	}
}

func TestChunkStore_Ping(t *testing.T) {
	s, err := OpenChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping on healthy store: %v", err)
	}
}

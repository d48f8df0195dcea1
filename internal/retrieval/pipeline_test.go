package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neuralstark/kbindex/internal/embedding"
	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/rerank"
	"github.com/neuralstark/kbindex/internal/store"
)

// countingEmbedder tracks how many texts get embedded.
type countingEmbedder struct {
	inner *embedding.MockEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) Close() error    { return nil }

func seedIndex(t *testing.T, ix *store.Index, docs map[string]string) {
	t.Helper()
	var chunks []*models.Chunk
	for name, text := range docs {
		chunks = append(chunks, &models.Chunk{
			Text:       text,
			Source:     "/docs/" + name,
			FileName:   name,
			SourceType: models.SourceInternal,
			EventType:  models.EventCreated,
			ModTime:    time.Now(),
		})
	}
	if err := ix.Upsert(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_EmptyCorpusSkipsSearch(t *testing.T) {
	emb := &countingEmbedder{inner: embedding.NewMockEmbedder(32)}
	ix, err := store.OpenIndex(t.TempDir(), emb, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.3)
	resp := e.Query(context.Background(), "anything", nil)
	if resp.Status != models.QueryNoInformation {
		t.Errorf("status=%s", resp.Status)
	}
	if emb.calls.Load() != 0 {
		t.Errorf("empty corpus must not embed, calls=%d", emb.calls.Load())
	}
}

func TestEngine_AnswersWithContextAndSources(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	seedIndex(t, ix, map[string]string{
		"alpha.txt": "alpha facts live here",
		"beta.txt":  "beta things elsewhere",
	})

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if !strings.Contains(resp.Context, "[Document 1]") {
		t.Errorf("context missing document marker: %q", resp.Context)
	}
	if !strings.Contains(resp.Context, "alpha facts") {
		t.Errorf("context missing matched chunk: %q", resp.Context)
	}
	if len(resp.Sources) == 0 || resp.Sources[0] != "alpha.txt" {
		t.Errorf("sources=%v", resp.Sources)
	}
	if resp.QueryTimeMS < 0 {
		t.Errorf("query_time_ms=%d", resp.QueryTimeMS)
	}
}

func TestEngine_SourcesDeduplicated(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	// Several chunks from the same file.
	var chunks []*models.Chunk
	for i := 0; i < 4; i++ {
		chunks = append(chunks, &models.Chunk{
			Text:     fmt.Sprintf("alpha section %d", i),
			Source:   "/docs/alpha.txt",
			FileName: "alpha.txt",
			Ordinal:  i,
			ModTime:  time.Now(),
		})
	}
	if err := ix.Upsert(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("sources=%v, want single de-duplicated entry", resp.Sources)
	}
}

func TestEngine_TopNTruncation(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	docs := make(map[string]string)
	for i := 0; i < 8; i++ {
		docs[fmt.Sprintf("doc%d.txt", i)] = fmt.Sprintf("alpha variant %d", i)
	}
	seedIndex(t, ix, docs)

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if n := strings.Count(resp.Context, "[Document"); n != 5 {
		t.Errorf("context has %d documents, want 5", n)
	}
}

// failingReranker always errors.
type failingReranker struct{}

func (failingReranker) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("cross-encoder unavailable")
}
func (failingReranker) Close() error { return nil }

func TestEngine_RerankFailureKeepsSimilarityOrder(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	seedIndex(t, ix, map[string]string{
		"match.txt": "alpha alpha alpha",
		"other.txt": "unrelated words",
	})

	e := NewEngine(ix, failingReranker{}, 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if resp.Sources[0] != "match.txt" {
		t.Errorf("similarity order not kept: %v", resp.Sources)
	}
}

// fixedReranker returns preset scores keyed by document text.
type fixedReranker struct{ scores map[string]float64 }

func (f fixedReranker) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = f.scores[d]
	}
	return out, nil
}
func (fixedReranker) Close() error { return nil }

func TestEngine_RerankReorders(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	seedIndex(t, ix, map[string]string{
		"vector-favorite.txt": "alpha alpha alpha",
		"encoder-pick.txt":    "alpha context elsewhere",
	})

	e := NewEngine(ix, fixedReranker{scores: map[string]float64{
		"alpha alpha alpha":       0.1,
		"alpha context elsewhere": 0.9,
	}}, 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if resp.Sources[0] != "encoder-pick.txt" {
		t.Errorf("rerank did not reorder: %v", resp.Sources)
	}
}

func TestEngine_SourceTypeFilter(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	chunks := []*models.Chunk{
		{Text: "alpha notes kept internally", Source: "/kb/internal/a.txt", FileName: "a.txt",
			SourceType: models.SourceInternal, ModTime: time.Now()},
		{Text: "alpha notes shared externally", Source: "/kb/external/b.txt", FileName: "b.txt",
			SourceType: models.SourceExternal, ModTime: time.Now()},
	}
	if err := ix.Upsert(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.0)
	resp := e.Query(context.Background(), "alpha", store.Filter{"source_type": string(models.SourceExternal)})
	if resp.Status != models.QueryOK {
		t.Fatalf("status=%s", resp.Status)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "b.txt" {
		t.Errorf("sources=%v, want only the external document", resp.Sources)
	}

	// No document carries the requested type.
	resp = e.Query(context.Background(), "alpha", store.Filter{"source_type": string(models.SourceUnknown)})
	if resp.Status != models.QueryNoInformation {
		t.Errorf("status=%s, want no_information", resp.Status)
	}
}

func TestEngine_TimeoutUnavailable(t *testing.T) {
	ix, err := store.OpenIndex(t.TempDir(), embedding.NewMockEmbedder(64), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	seedIndex(t, ix, map[string]string{"a.txt": "alpha"})

	e := NewEngine(ix, rerank.NewMockReranker(), 10, 5, 0.0, WithTimeout(time.Nanosecond))
	resp := e.Query(context.Background(), "alpha", nil)
	if resp.Status != models.QueryUnavailable {
		t.Errorf("status=%s, want unavailable", resp.Status)
	}
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/embedding"
	"github.com/neuralstark/kbindex/internal/models"
)

// File names inside an index directory.
const (
	ChunkDBFile = "chunks.db"
	VectorFile  = "vectors.bin"
	JournalFile = "index_journal.json"
)

// Index combines the chunk database and the vector index behind one write
// path. Mutations embed, persist and save the vector file atomically with
// respect to each other.
type Index struct {
	dir       string
	chunks    *ChunkStore
	vectors   *VectorIndex
	embedder  embedding.Embedder
	batchSize int
	logger    *zap.Logger

	mu sync.Mutex // serializes mutations and vector saves
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger attaches a logger for index operations. A nil logger is ignored.
func WithLogger(logger *zap.Logger) IndexOption {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// OpenIndex opens (or creates) the index in dir, loading any persisted
// vectors. The embedder defines the vector dimension.
func OpenIndex(dir string, embedder embedding.Embedder, batchSize int, opts ...IndexOption) (*Index, error) {
	chunks, err := OpenChunkStore(filepath.Join(dir, ChunkDBFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	vectors, err := NewVectorIndex(embedder.Dimensions())
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}
	if err := vectors.Load(filepath.Join(dir, VectorFile)); err != nil {
		_ = chunks.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 8
	}
	ix := &Index{
		dir:       dir,
		chunks:    chunks,
		vectors:   vectors,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Dir returns the index directory.
func (ix *Index) Dir() string {
	return ix.dir
}

// Upsert embeds and stores chunks. Embedding runs in batches so a single huge
// document does not hold one model call open for minutes. Chunks replace any
// previous entries under the same (source, ordinal) keys.
func (ix *Index) Upsert(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	keys := make([]string, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for i, c := range chunks {
		keys[i] = c.Key()
	}
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return transient("embed batch", err)
		}
		vectors = append(vectors, batch...)
	}

	if err := ix.chunks.UpsertChunks(ctx, chunks); err != nil {
		return err
	}
	if err := ix.vectors.Upsert(ctx, keys, vectors); err != nil {
		return err
	}
	if err := ix.vectors.Save(filepath.Join(ix.dir, VectorFile)); err != nil {
		return transient("save vector index", err)
	}
	ix.logger.Debug("chunks upserted",
		zap.Int("count", len(chunks)),
		zap.String("source", chunks[0].Source))
	return nil
}

// DeleteWhere removes all chunks matching the filter from both stores and
// returns how many were deleted.
func (ix *Index) DeleteWhere(ctx context.Context, f Filter) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	keys, err := ix.chunks.DeleteWhere(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := ix.vectors.Remove(ctx, keys); err != nil {
		return 0, err
	}
	if err := ix.vectors.Save(filepath.Join(ix.dir, VectorFile)); err != nil {
		return 0, transient("save vector index", err)
	}
	ix.logger.Debug("chunks deleted", zap.Int("count", len(keys)))
	return len(keys), nil
}

// Search embeds the query and returns the k nearest chunks with cosine
// distance (1 - similarity), ascending, with full chunk records attached.
// A non-empty filter restricts candidates by metadata equality, e.g.
// source_type, before the vector comparison.
func (ix *Index) Search(ctx context.Context, query string, k int, f Filter) ([]models.QueryCandidate, error) {
	var allow map[string]bool
	if len(f) > 0 {
		keys, err := ix.chunks.KeysWhere(ctx, f)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, nil
		}
		allow = make(map[string]bool, len(keys))
		for _, key := range keys {
			allow[key] = true
		}
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, transient("embed query", err)
	}
	hits, err := ix.vectors.Search(ctx, vec, k, allow)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.Key
	}
	records, err := ix.chunks.GetByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.QueryCandidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := records[h.Key]
		if !ok {
			// vector without a row; skip rather than fail the query
			ix.logger.Warn("orphan vector skipped", zap.String("key", h.Key))
			continue
		}
		candidates = append(candidates, models.QueryCandidate{
			Chunk:    chunk,
			Distance: 1 - h.Score,
		})
	}
	return candidates, nil
}

// Count returns the number of stored chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.chunks.CountChunks(ctx)
}

// Sources returns the distinct indexed source paths.
func (ix *Index) Sources(ctx context.Context) ([]string, error) {
	return ix.chunks.Sources(ctx)
}

// VectorCount returns the number of stored vectors.
func (ix *Index) VectorCount() int {
	return ix.vectors.Size()
}

// Ping verifies the chunk database answers a trivial query.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.chunks.Ping(ctx)
}

// Close closes the chunk database. Vectors are already on disk.
func (ix *Index) Close() error {
	return ix.chunks.Close()
}

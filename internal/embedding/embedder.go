// Package embedding provides text embedding via ONNX and caching.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text. Embedding is
// CPU-bound and potentially slow; callers batch through EmbedBatch and keep it
// off latency-sensitive paths.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

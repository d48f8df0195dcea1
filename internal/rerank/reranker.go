// Package rerank scores (query, document) pairs with a cross-encoder so the
// top retrieval candidates can be reordered by semantic relevance.
package rerank

import "context"

// Reranker assigns a relevance score to each document for a query. Higher is
// more relevant. Score order across documents matters; absolute values do not.
type Reranker interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
	Close() error
}

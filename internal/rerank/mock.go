package rerank

import (
	"context"
	"strings"
)

// MockReranker scores documents by word overlap with the query. Deterministic,
// for tests and as a fallback when no cross-encoder model is configured.
type MockReranker struct{}

// NewMockReranker returns a word-overlap reranker.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Score returns, for each document, the fraction of query words it contains.
func (r *MockReranker) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryWords := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		if len(queryWords) == 0 {
			continue
		}
		docWords := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(doc)) {
			docWords[w] = true
		}
		matched := 0
		for _, w := range queryWords {
			if docWords[w] {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(queryWords))
	}
	return scores, nil
}

// Close is a no-op for MockReranker.
func (r *MockReranker) Close() error {
	return nil
}

// Package retrieval answers queries over the index: similarity search,
// threshold selection, cross-encoder reranking and context assembly. The
// pipeline never surfaces raw errors; every outcome maps to a QueryStatus.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/rerank"
	"github.com/neuralstark/kbindex/internal/store"
)

// Engine runs retrieval queries against one index.
type Engine struct {
	index      *store.Index
	reranker   rerank.Reranker
	selector   Selector
	candidateK int
	topN       int
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds each query; on expiry the response is unavailable.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates a retrieval engine. candidateK is the first-stage search
// width, topN the number of chunks kept after reranking.
func NewEngine(index *store.Index, reranker rerank.Reranker, candidateK, topN int, threshold float64, opts ...Option) *Engine {
	if candidateK <= 0 {
		candidateK = 10
	}
	if topN <= 0 {
		topN = 5
	}
	e := &Engine{
		index:      index,
		reranker:   reranker,
		selector:   Selector{Threshold: threshold, FallbackTop: 3},
		candidateK: candidateK,
		topN:       topN,
		timeout:    30 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query runs the full pipeline for one query string. A non-empty filter
// restricts candidates by metadata equality (e.g. source_type); nil searches
// the whole corpus.
func (e *Engine) Query(ctx context.Context, query string, filter store.Filter) models.QueryResponse {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp := e.run(ctx, query, filter)
	resp.QueryTimeMS = time.Since(start).Milliseconds()
	e.logger.Info("query answered",
		zap.String("status", string(resp.Status)),
		zap.Int("sources", len(resp.Sources)),
		zap.Int64("query_time_ms", resp.QueryTimeMS))
	return resp
}

func (e *Engine) run(ctx context.Context, query string, filter store.Filter) models.QueryResponse {
	// An empty corpus answers immediately without touching the model.
	count, err := e.index.Count(ctx)
	if err != nil {
		e.logger.Error("index unreachable", zap.Error(err))
		return models.QueryResponse{Status: models.QueryUnavailable}
	}
	if count == 0 {
		return models.QueryResponse{Status: models.QueryNoInformation}
	}

	candidates, err := e.index.Search(ctx, query, e.candidateK, filter)
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn("query timed out", zap.String("query", query))
		} else {
			e.logger.Error("search failed", zap.Error(err))
		}
		return models.QueryResponse{Status: models.QueryUnavailable}
	}

	kept, rule := e.selector.Select(candidates)
	e.logger.Debug("candidates selected",
		zap.Int("searched", len(candidates)),
		zap.Int("kept", len(kept)),
		zap.String("rule", rule))
	if len(kept) == 0 {
		return models.QueryResponse{Status: models.QueryNoInformation}
	}

	results := e.rerankCandidates(ctx, query, kept)
	if len(results) > e.topN {
		results = results[:e.topN]
	}

	return models.QueryResponse{
		Status:  models.QueryOK,
		Context: buildContext(results),
		Sources: collectSources(results),
	}
}

// rerankCandidates scores candidates with the cross-encoder and orders them
// by score descending. If the reranker fails, the similarity order stands.
func (e *Engine) rerankCandidates(ctx context.Context, query string, kept []models.QueryCandidate) []models.RerankedResult {
	results := make([]models.RerankedResult, len(kept))
	for i, c := range kept {
		// Seed scores with inverted distance so a rerank failure keeps
		// the similarity order.
		results[i] = models.RerankedResult{Chunk: c.Chunk, Score: -c.Distance}
	}
	if e.reranker == nil {
		return results
	}

	texts := make([]string, len(kept))
	for i, c := range kept {
		texts[i] = c.Chunk.Text
	}
	scores, err := e.reranker.Score(ctx, query, texts)
	if err != nil || len(scores) != len(kept) {
		e.logger.Warn("rerank failed, keeping similarity order", zap.Error(err))
		return results
	}
	for i := range results {
		results[i].Score = scores[i]
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// buildContext concatenates chunk texts with document markers.
func buildContext(results []models.RerankedResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Document %d]\n%s", i+1, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// collectSources returns the file names of the results, de-duplicated with
// first-seen order preserved.
func collectSources(results []models.RerankedResult) []string {
	seen := make(map[string]bool, len(results))
	var sources []string
	for _, r := range results {
		name := r.Chunk.FileName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sources = append(sources, name)
	}
	return sources
}

package retrieval

import (
	"strings"

	"github.com/neuralstark/kbindex/internal/models"
)

// Selector applies the candidate acceptance rules in order and reports which
// rule produced the final set. Distances are cosine distances, so a
// similarity threshold t keeps candidates with distance <= 1 - t.
type Selector struct {
	// Threshold is the minimum cosine similarity to keep a candidate.
	Threshold float64
	// FallbackTop is how many of the closest candidates to keep when the
	// threshold rejects everything. The corpus may simply not contain a
	// close match; the nearest chunks are still better than nothing.
	FallbackTop int
}

// Rule names for logging.
const (
	RuleThreshold = "threshold"
	RuleFallback  = "fallback_top"
	RuleNone      = "none"
)

// Select filters candidates. Blank chunks are dropped first; they carry no
// answerable content regardless of distance.
func (s Selector) Select(candidates []models.QueryCandidate) ([]models.QueryCandidate, string) {
	nonBlank := candidates[:0:0]
	for _, c := range candidates {
		if c.Chunk != nil && strings.TrimSpace(c.Chunk.Text) != "" {
			nonBlank = append(nonBlank, c)
		}
	}
	if len(nonBlank) == 0 {
		return nil, RuleNone
	}

	maxDistance := 1 - s.Threshold
	var kept []models.QueryCandidate
	for _, c := range nonBlank {
		if c.Distance <= maxDistance {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		return kept, RuleThreshold
	}

	top := s.FallbackTop
	if top <= 0 {
		top = 3
	}
	if top > len(nonBlank) {
		top = len(nonBlank)
	}
	return nonBlank[:top], RuleFallback
}

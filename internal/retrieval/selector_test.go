package retrieval

import (
	"testing"

	"github.com/neuralstark/kbindex/internal/models"
)

func candidate(text string, distance float64) models.QueryCandidate {
	return models.QueryCandidate{
		Chunk:    &models.Chunk{Text: text, FileName: "f.txt"},
		Distance: distance,
	}
}

func TestSelector_ThresholdKeepsClose(t *testing.T) {
	s := Selector{Threshold: 0.3, FallbackTop: 3}
	kept, rule := s.Select([]models.QueryCandidate{
		candidate("close", 0.2),
		candidate("borderline", 0.7),
		candidate("far", 0.9),
	})
	if rule != RuleThreshold {
		t.Fatalf("rule=%s", rule)
	}
	// threshold 0.3 keeps distance <= 0.7
	if len(kept) != 2 {
		t.Errorf("kept=%d, want 2", len(kept))
	}
}

func TestSelector_FallbackWhenAllRejected(t *testing.T) {
	s := Selector{Threshold: 0.3, FallbackTop: 3}
	kept, rule := s.Select([]models.QueryCandidate{
		candidate("a", 0.8),
		candidate("b", 0.85),
		candidate("c", 0.9),
		candidate("d", 0.95),
	})
	if rule != RuleFallback {
		t.Fatalf("rule=%s", rule)
	}
	if len(kept) != 3 {
		t.Errorf("kept=%d, want 3", len(kept))
	}
	if kept[0].Chunk.Text != "a" {
		t.Error("fallback should keep the closest candidates in order")
	}
}

func TestSelector_DropsBlankChunks(t *testing.T) {
	s := Selector{Threshold: 0.3, FallbackTop: 3}
	kept, rule := s.Select([]models.QueryCandidate{
		candidate("", 0.1),
		candidate("   \n\t ", 0.15),
		candidate("real", 0.2),
	})
	if rule != RuleThreshold || len(kept) != 1 || kept[0].Chunk.Text != "real" {
		t.Errorf("rule=%s kept=%v", rule, kept)
	}

	kept, rule = s.Select([]models.QueryCandidate{candidate("", 0.1), candidate("  ", 0.2)})
	if rule != RuleNone || kept != nil {
		t.Errorf("all blank: rule=%s kept=%v", rule, kept)
	}
}

func TestSelector_Empty(t *testing.T) {
	s := Selector{Threshold: 0.3}
	kept, rule := s.Select(nil)
	if rule != RuleNone || kept != nil {
		t.Errorf("rule=%s kept=%v", rule, kept)
	}
}

package embedding

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	a, err := e.Embed(context.Background(), "alpha beta gamma")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), "alpha beta gamma")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must produce the same embedding")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("embedding not unit length: %f", norm)
	}
}

func TestMockEmbedder_OverlapOrdering(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "alpha")
	near, _ := e.Embed(ctx, "alpha beta gamma")
	far, _ := e.Embed(ctx, "delta epsilon zeta")
	if cosine(query, near) <= cosine(query, far) {
		t.Error("text sharing the query word should score closer")
	}
}

func TestNormalizeL2_Zero(t *testing.T) {
	x := []float32{0, 0, 0}
	NormalizeL2(x)
	for _, v := range x {
		if v != 0 {
			t.Fatal("zero vector should stay zero")
		}
	}
}

package hashembed

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	e := New(64)
	first, err := e.Embed(context.Background(), []string{"Hydrogen strategy for Europe"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, _ := e.Embed(context.Background(), []string{"hydrogen STRATEGY for europe"})
	if got := dot(first[0], second[0]); math.Abs(got-1) > 1e-5 {
		t.Fatalf("expected identical vectors, dot=%f", got)
	}
	if got := dot(first[0], first[0]); math.Abs(got-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %f", got)
	}
}

func TestEmbedRanksOverlapHigher(t *testing.T) {
	e := New(256)
	vectors, _ := e.Embed(context.Background(), []string{
		"hydrogen fuel cells",
		"hydrogen fuel cells for trucks",
		"agricultural subsidies reform",
	})
	if dot(vectors[0], vectors[1]) <= dot(vectors[0], vectors[2]) {
		t.Fatalf("overlapping texts should score higher")
	}
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	vectors, _ := New(8).Embed(context.Background(), []string{"  "})
	for _, v := range vectors[0] {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vectors[0])
		}
	}
}

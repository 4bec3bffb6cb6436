package flat

import (
	"fmt"
	"math"
	"slices"
)

// NotFound marks a padded search slot that does not address any vector.
const NotFound = -1

type Hit struct {
	Position int
	Score    float32
}

// Index is an exact inner-product index over row-major float32 vectors.
// Positions are assigned in insertion order.
type Index struct {
	dim  int
	data []float32
}

func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

func (ix *Index) Dimension() int { return ix.dim }

func (ix *Index) Len() int {
	if ix.dim == 0 {
		return 0
	}
	return len(ix.data) / ix.dim
}

// Add appends all vectors or none.
func (ix *Index) Add(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != ix.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(vec), ix.dim)
		}
	}
	ix.data = slices.Grow(ix.data, len(vectors)*ix.dim)
	for _, vec := range vectors {
		ix.data = append(ix.data, vec...)
	}
	return nil
}

func (ix *Index) Vector(pos int) []float32 {
	return ix.data[pos*ix.dim : (pos+1)*ix.dim]
}

// Search returns exactly n hits, best first with ties broken by position.
// Slots beyond the number of stored vectors carry NotFound.
func (ix *Index) Search(query []float32, n int) []Hit {
	if n <= 0 {
		return nil
	}
	total := ix.Len()
	hits := make([]Hit, total)
	if len(query) == ix.dim {
		for pos := 0; pos < total; pos++ {
			hits[pos] = Hit{Position: pos, Score: dot(query, ix.Vector(pos))}
		}
	} else {
		hits = hits[:0]
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(hits) > n {
		hits = hits[:n]
	}
	for len(hits) < n {
		hits = append(hits, Hit{Position: NotFound, Score: float32(math.Inf(-1))})
	}
	return hits
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize scales vec to unit length in place. Zero vectors stay zero.
func Normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}

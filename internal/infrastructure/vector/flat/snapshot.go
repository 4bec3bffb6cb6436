package flat

import (
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/infrastructure/concepts"
)

// snapshot is an immutable index generation: vectors and chunks share
// positions. It is built off to the side and published with one pointer swap.
type snapshot struct {
	index    *Index
	chunks   []domain.Chunk
	groups   []domain.ConceptGroup
	provider string
	buildID  string
	builtAt  time.Time
	stats    domain.IndexStats
}

func newSnapshot(dim int, provider, buildID string, builtAt time.Time, groups []domain.ConceptGroup) *snapshot {
	return &snapshot{
		index:    NewIndex(dim),
		groups:   concepts.CloneGroups(groups),
		provider: provider,
		buildID:  buildID,
		builtAt:  builtAt.UTC(),
	}
}

// appendBatch commits one embedding batch to both structures or to neither.
func (s *snapshot) appendBatch(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("batch has %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if err := s.index.Add(vectors); err != nil {
		return err
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *snapshot) verify() error {
	if s.index.Len() != len(s.chunks) {
		return fmt.Errorf("index holds %d vectors but %d chunks", s.index.Len(), len(s.chunks))
	}
	for pos, chunk := range s.chunks {
		if chunk.Position < 0 {
			return fmt.Errorf("chunk %d has negative position", pos)
		}
	}
	return nil
}

// seal computes derived statistics once the snapshot is complete.
func (s *snapshot) seal() *snapshot {
	stats := domain.IndexStats{
		ChunkCount: len(s.chunks),
		Dimension:  s.index.Dimension(),
		Provider:   s.provider,
		BuildID:    s.buildID,
		BuiltAt:    s.builtAt,
		BySource:   map[string]int{},
		ByDocType:  map[string]int{},
	}
	for _, chunk := range s.chunks {
		stats.BySource[chunk.Source]++
		stats.ByDocType[chunk.DocType]++
	}
	stats.Sources = make([]string, 0, len(stats.BySource))
	for source := range stats.BySource {
		stats.Sources = append(stats.Sources, source)
	}
	sort.Strings(stats.Sources)
	s.stats = stats
	return s
}

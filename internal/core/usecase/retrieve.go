package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
)

const secondaryQueryLimit = 3

// HybridRetriever runs the original query plus a few expansion queries and
// merges the hits.
type HybridRetriever struct {
	searcher ports.VectorSearcher
	expander *QueryExpander
}

func NewHybridRetriever(searcher ports.VectorSearcher, expander *QueryExpander) *HybridRetriever {
	return &HybridRetriever{searcher: searcher, expander: expander}
}

// Retrieve returns at most k results and the expansion terms used. A failed
// secondary query is logged and skipped; a failed primary query is returned.
func (r *HybridRetriever) Retrieve(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) ([]domain.RetrievalResult, []string, error) {
	expansions := r.expander.Expand(query)
	if k <= 0 {
		return []domain.RetrievalResult{}, expansions, nil
	}

	pool, err := r.searcher.Search(ctx, query, k, filter)
	if err != nil {
		return nil, expansions, fmt.Errorf("primary search: %w", err)
	}

	secondaryK := max(k/2, 1)
	for _, term := range secondaryTerms(expansions) {
		hits, err := r.searcher.Search(ctx, term, secondaryK, filter)
		if err != nil {
			slog.Warn("secondary_search_failed", "term", term, "error", err)
			continue
		}
		pool = append(pool, hits...)
	}

	return mergeResults(pool, k), expansions, nil
}

func secondaryTerms(expansions []string) []string {
	if len(expansions) <= 1 {
		return nil
	}
	terms := expansions[1:]
	if len(terms) > secondaryQueryLimit {
		terms = terms[:secondaryQueryLimit]
	}
	return terms
}

// mergeResults keeps the best score per chunk at its first-seen position,
// then stable-sorts descending so equal scores keep pool order.
func mergeResults(pool []domain.RetrievalResult, k int) []domain.RetrievalResult {
	index := make(map[string]int, len(pool))
	merged := make([]domain.RetrievalResult, 0, len(pool))
	for _, hit := range pool {
		if pos, ok := index[hit.Chunk.ChunkID]; ok {
			if hit.Score > merged[pos].Score {
				merged[pos].Score = hit.Score
			}
			continue
		}
		index[hit.Chunk.ChunkID] = len(merged)
		merged = append(merged, hit)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func newRetrieverFixture() (*fakeSearcher, *HybridRetriever) {
	searcher := &fakeSearcher{results: map[string][]domain.RetrievalResult{
		"hydrogen": {
			hit("c1", "EUR-Lex", 0.50),
			hit("c2", "EURACTIV", 0.40),
		},
		"fuel cells": {
			hit("c1", "EUR-Lex", 0.90),
			hit("c3", "EUR-Lex", 0.40),
		},
		"H2 valleys": {
			hit("c4", "EURACTIV", 0.10),
		},
	}}
	return searcher, NewHybridRetriever(searcher, NewQueryExpander(testGroups(), nil))
}

func TestRetrieveRunsPrimaryThenSecondaryQueries(t *testing.T) {
	searcher, r := newRetrieverFixture()

	_, expansions, err := r.Retrieve(context.Background(), "hydrogen", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []searchCall{{"hydrogen", 4}, {"fuel cells", 2}, {"H2 valleys", 2}}
	if !reflect.DeepEqual(searcher.calls, want) {
		t.Fatalf("expected calls %v, got %v", want, searcher.calls)
	}
	if expansions[0] != "hydrogen" {
		t.Fatalf("expected query first in expansions, got %v", expansions)
	}
}

func TestRetrieveDeduplicatesKeepingBestScore(t *testing.T) {
	_, r := newRetrieverFixture()

	got, _, err := r.Retrieve(context.Background(), "hydrogen", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, res := range got {
		ids = append(ids, res.Chunk.ChunkID)
	}
	if !reflect.DeepEqual(ids, []string{"c1", "c2", "c3", "c4"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	if got[0].Score != 0.90 {
		t.Fatalf("expected best score kept for c1, got %v", got[0].Score)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	_, r := newRetrieverFixture()

	got, _, err := r.Retrieve(context.Background(), "hydrogen", 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	_, r := newRetrieverFixture()

	first, _, err := r.Retrieve(context.Background(), "hydrogen", 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	second, _, err := r.Retrieve(context.Background(), "hydrogen", 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v and %v", first, second)
	}
}

func TestRetrieveSkipsFailedSecondaryQuery(t *testing.T) {
	searcher, r := newRetrieverFixture()
	searcher.errs = map[string]error{"fuel cells": errors.New("timeout")}

	got, _, err := r.Retrieve(context.Background(), "hydrogen", 4, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected primary and remaining secondary hits, got %d", len(got))
	}
}

func TestRetrieveReturnsPrimaryFailure(t *testing.T) {
	searcher, r := newRetrieverFixture()
	searcher.errs = map[string]error{"hydrogen": errors.New("embed failed")}

	if _, _, err := r.Retrieve(context.Background(), "hydrogen", 4, domain.SearchFilter{}); err == nil {
		t.Fatalf("expected primary failure to be returned")
	}
}

func TestRetrieveAppliesFilterToEveryQuery(t *testing.T) {
	_, r := newRetrieverFixture()

	got, _, err := r.Retrieve(context.Background(), "hydrogen", 4, domain.SearchFilter{Source: "EURACTIV"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, res := range got {
		if res.Chunk.Source != "EURACTIV" {
			t.Fatalf("unexpected source %q", res.Chunk.Source)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 filtered results, got %d", len(got))
	}
}

func TestRetrieveNonPositiveKIsEmpty(t *testing.T) {
	searcher, r := newRetrieverFixture()

	got, _, err := r.Retrieve(context.Background(), "hydrogen", 0, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 || len(searcher.calls) != 0 {
		t.Fatalf("expected no search for k=0")
	}
}

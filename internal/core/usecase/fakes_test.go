package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

type searchCall struct {
	query string
	k     int
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]domain.RetrievalResult
	errs    map[string]error
	calls   []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{query: query, k: k})
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	var out []domain.RetrievalResult
	for _, hit := range f.results[query] {
		if len(out) == k {
			break
		}
		if filter.Matches(hit.Chunk) {
			out = append(out, hit)
		}
	}
	return out, nil
}

type fakeStore struct {
	fakeSearcher

	ready     bool
	loadErr   error
	ingestErr error
	saveErr   error
	stats     domain.IndexStats
	groups    []domain.ConceptGroup

	ingested  []domain.DocumentRecord
	savedPath string
	loads     int
}

func (f *fakeStore) Ingest(_ context.Context, docs []domain.DocumentRecord) (int, error) {
	if f.ingestErr != nil {
		return 0, f.ingestErr
	}
	f.ingested = docs
	f.ready = true
	f.stats.ChunkCount = len(docs)
	return len(docs), nil
}

func (f *fakeStore) Save(_ context.Context, path string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedPath = path
	return nil
}

func (f *fakeStore) Load(context.Context, string) error {
	f.loads++
	if f.loadErr != nil {
		return f.loadErr
	}
	f.ready = true
	return nil
}

func (f *fakeStore) Stats() (domain.IndexStats, bool) {
	return f.stats, f.ready
}

func (f *fakeStore) ConceptGroups() []domain.ConceptGroup {
	if !f.ready {
		return nil
	}
	return f.groups
}

type fakeGenerator struct {
	answer string
	err    error

	system string
	user   string
}

func (f *fakeGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.system = systemPrompt
	f.user = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeDetector struct{ lang string }

func (f fakeDetector) Detect(string) string { return f.lang }

type fakeObserver struct {
	modes []domain.AnswerMode
}

func (f *fakeObserver) ObserveQuery(mode domain.AnswerMode, _ float64, _ int, _ time.Duration) {
	f.modes = append(f.modes, mode)
}

type fakeSource struct {
	docs []domain.DocumentRecord
	err  error
}

func (f fakeSource) Documents(context.Context) ([]domain.DocumentRecord, error) {
	return f.docs, f.err
}

type fakePublisher struct {
	buildIDs []string
	err      error
}

func (f *fakePublisher) PublishIndexUpdated(_ context.Context, buildID string) error {
	f.buildIDs = append(f.buildIDs, buildID)
	return f.err
}

var errProviderDown = domain.WrapError(domain.ErrProviderUnavailable, "generate", errors.New("connection refused"))

func hit(id, source string, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{
		Chunk: domain.Chunk{ChunkID: id, DocID: id, Source: source, DocType: "regulation", Title: "Title " + id, Content: "Content of " + id},
		Score: score,
	}
}

func testGroups() []domain.ConceptGroup {
	return []domain.ConceptGroup{
		{Name: "hydrogen", Terms: []string{"fuel cells", "H2 valleys"}},
		{Name: "climate", Terms: []string{"emissions", "carbon neutrality", "greenhouse gases"}},
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
)

const (
	DefaultTopK = 8
	// DefaultMaxK caps caller supplied k.
	DefaultMaxK = 50
)

// QueryObserver receives one call per answered query.
type QueryObserver interface {
	ObserveQuery(mode domain.AnswerMode, confidence float64, sources int, duration time.Duration)
}

type RAGServiceOptions struct {
	IndexPath        string
	DefaultK         int
	MaxK             int
	Detector         ports.LanguageDetector
	FallbackLanguage string
	Observer         QueryObserver
	Now              func() time.Time
}

// RAGService owns the reloadable index state and answers questions over it.
// It is Ready while the store holds a snapshot, and Unavailable after a
// load attempt left it without one.
type RAGService struct {
	store    ports.VectorStore
	searcher ports.VectorSearcher
	// configured is the expander built from configuration; it serves until a
	// snapshot carrying its own concept table is loaded.
	configured *QueryExpander
	pipeline   atomic.Pointer[queryPipeline]
	composer   *AnswerComposer
	opts       RAGServiceOptions

	mu            sync.Mutex
	attempted     bool
	lastAttemptAt *time.Time
	lastLoadedAt  *time.Time
	lastErr       error
}

// NewRAGService wires the service. searcher may wrap store (for caching);
// nil means searching the store directly.
func NewRAGService(
	store ports.VectorStore,
	searcher ports.VectorSearcher,
	expander *QueryExpander,
	composer *AnswerComposer,
	opts RAGServiceOptions,
) *RAGService {
	if searcher == nil {
		searcher = store
	}
	if expander == nil {
		expander = NewQueryExpander(nil, nil)
	}
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultMaxK
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultTopK
	}
	opts.DefaultK = min(opts.DefaultK, opts.MaxK)
	if opts.FallbackLanguage == "" {
		opts.FallbackLanguage = "en"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &RAGService{
		store:      store,
		searcher:   searcher,
		configured: expander,
		composer:   composer,
		opts:       opts,
	}
	s.usePipeline(expander)
	return s
}

// queryPipeline pairs the expander with the retriever using it, swapped as
// one unit on reload.
type queryPipeline struct {
	expander  *QueryExpander
	retriever *HybridRetriever
}

func (s *RAGService) usePipeline(expander *QueryExpander) {
	s.pipeline.Store(&queryPipeline{expander: expander, retriever: NewHybridRetriever(s.searcher, expander)})
}

// Reload loads the persisted snapshot. On failure the previous snapshot, if
// any, stays live and the error is recorded in Status.
func (s *RAGService) Reload(ctx context.Context) error {
	now := s.opts.Now().UTC()
	err := s.store.Load(ctx, s.opts.IndexPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted = true
	s.lastAttemptAt = &now
	if err != nil {
		s.lastErr = err
		slog.Warn("index_load_failed", "path", s.opts.IndexPath, "error", err)
		return fmt.Errorf("reload index: %w", err)
	}
	s.lastErr = nil
	s.lastLoadedAt = &now

	if groups := s.store.ConceptGroups(); len(groups) > 0 {
		s.usePipeline(s.configured.WithGroups(groups))
	} else {
		s.usePipeline(s.configured)
	}

	stats, _ := s.store.Stats()
	slog.Info("index_loaded",
		"path", s.opts.IndexPath,
		"chunks", stats.ChunkCount,
		"provider", stats.Provider,
		"build_id", stats.BuildID,
	)
	return nil
}

func (s *RAGService) State() domain.ServiceState {
	if _, ok := s.store.Stats(); ok {
		return domain.StateReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempted {
		return domain.StateUnavailable
	}
	return domain.StateUninitialized
}

func (s *RAGService) Status() domain.ServiceStatus {
	stats, ok := s.store.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()
	status := domain.ServiceStatus{
		State:         domain.StateUninitialized,
		IndexLoaded:   ok,
		IndexPath:     s.opts.IndexPath,
		LastLoadedAt:  s.lastLoadedAt,
		LastAttemptAt: s.lastAttemptAt,
	}
	switch {
	case ok:
		status.State = domain.StateReady
		status.Stats = &stats
	case s.attempted:
		status.State = domain.StateUnavailable
	}
	if s.lastErr != nil {
		status.LastLoadError = s.lastErr.Error()
	}
	return status
}

// Topics returns the concept table of the live snapshot, or the configured
// table when nothing is loaded.
func (s *RAGService) Topics() []domain.ConceptGroup {
	if groups := s.store.ConceptGroups(); len(groups) > 0 {
		return groups
	}
	return s.configured.Groups()
}

func (s *RAGService) Search(
	ctx context.Context,
	query string,
	k int,
	filter domain.SearchFilter,
) ([]domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	k = s.boundK(k)
	if s.State() != domain.StateReady {
		return nil, domain.WrapError(domain.ErrNotFound, "search", fmt.Errorf("index is not loaded"))
	}
	return s.searcher.Search(ctx, query, k, filter)
}

// Query answers question from the live index. Only invalid input is an
// error: an unloaded index, a failed retrieval or a failed generation all
// produce a well-formed result with zero confidence.
func (s *RAGService) Query(
	ctx context.Context,
	question string,
	k int,
	filter domain.SearchFilter,
) (domain.RAGResult, error) {
	started := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.RAGResult{}, domain.WrapError(domain.ErrInvalidInput, "query", fmt.Errorf("question is required"))
	}
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return domain.RAGResult{}, err
	}
	k = s.boundK(k)

	language := s.detectLanguage(question)
	result := s.answer(ctx, question, k, filter, language)
	s.observe(result, time.Since(started))
	return result, nil
}

// boundK applies the default to non-positive k and clamps large values, so
// an oversized request gets at most MaxK results instead of an error.
func (s *RAGService) boundK(k int) int {
	if k <= 0 {
		return s.opts.DefaultK
	}
	return min(k, s.opts.MaxK)
}

func (s *RAGService) answer(
	ctx context.Context,
	question string,
	k int,
	filter domain.SearchFilter,
	language string,
) domain.RAGResult {
	pipeline := s.pipeline.Load()
	if s.State() != domain.StateReady {
		return domain.RAGResult{
			Answer:         UnavailableAnswer(question),
			Sources:        []domain.Chunk{},
			ExpansionTerms: pipeline.expander.Expand(question),
			Language:       language,
			Mode:           domain.AnswerUnavailable,
		}
	}

	hits, expansions, err := pipeline.retriever.Retrieve(ctx, question, k, filter)
	if err != nil {
		slog.Warn("retrieval_failed", "k", k, "error", err)
		return domain.RAGResult{
			Answer:         s.composer.FallbackAnswer(question, nil),
			Sources:        []domain.Chunk{},
			ExpansionTerms: expansions,
			Language:       language,
			Mode:           domain.AnswerFallback,
		}
	}

	sources := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, hit.Chunk)
	}
	answer, confidence, mode := s.composer.Compose(ctx, question, sources, language)
	return domain.RAGResult{
		Answer:         answer,
		Sources:        sources,
		ExpansionTerms: expansions,
		Confidence:     confidence,
		Language:       language,
		Mode:           mode,
	}
}

func (s *RAGService) detectLanguage(text string) string {
	if s.opts.Detector != nil {
		if lang := s.opts.Detector.Detect(text); lang != "" {
			return lang
		}
	}
	return s.opts.FallbackLanguage
}

func (s *RAGService) observe(result domain.RAGResult, elapsed time.Duration) {
	if s.opts.Observer == nil {
		return
	}
	s.opts.Observer.ObserveQuery(result.Mode, result.Confidence, len(result.Sources), elapsed)
}

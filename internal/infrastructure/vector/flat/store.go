// Package flat implements the vector store: an exact inner-product index and
// a chunk store kept in lockstep, published as immutable snapshots.
package flat

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
	"github.com/kirillkom/policy-radar/internal/infrastructure/concepts"
	"github.com/kirillkom/policy-radar/internal/infrastructure/langdetect"
)

const (
	DefaultBatchSize   = 32
	DefaultOverFetch   = 3
	DefaultParallelism = 2
)

type Options struct {
	Chunker  ports.Chunker
	Enricher ports.ConceptEnricher
	Detector ports.LanguageDetector

	MaxChunkLength   int
	BatchSize        int
	Parallelism      int
	OverFetch        int
	FallbackLanguage string

	// Limiter paces embedding batch requests. Nil means unlimited.
	Limiter *rate.Limiter
	// Progress is called after every embedded batch with cumulative counts.
	Progress func(done, total int)
	Now      func() time.Time
}

type Store struct {
	embedder ports.Embedder
	opts     Options

	writeMu    sync.Mutex
	live       atomic.Pointer[snapshot]
	generation atomic.Uint64
}

func New(embedder ports.Embedder, opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.OverFetch <= 0 {
		opts.OverFetch = DefaultOverFetch
	}
	if opts.FallbackLanguage == "" {
		opts.FallbackLanguage = "en"
	}
	if opts.Enricher == nil {
		opts.Enricher = concepts.NewEnricher(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{embedder: embedder, opts: opts}
}

// Generation increases every time a new snapshot goes live.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

func (s *Store) publish(next *snapshot) {
	s.live.Store(next)
	s.generation.Add(1)
}

// Ingest rebuilds the index from docs and swaps it in once complete. In-flight
// searches keep using the previous snapshot.
func (s *Store) Ingest(ctx context.Context, docs []domain.DocumentRecord) (int, error) {
	if s.opts.Chunker == nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "ingest", fmt.Errorf("chunker is not configured"))
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	chunks := s.buildChunks(docs)
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	next := newSnapshot(s.embedder.Dimension(), s.embedder.Identifier(), uuid.NewString(), s.opts.Now(), s.opts.Enricher.Groups())
	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(chunks))
		if err := next.appendBatch(chunks[start:end], vectors[start:end]); err != nil {
			return 0, fmt.Errorf("ingest append batch: %w", err)
		}
	}
	if err := next.verify(); err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	s.publish(next.seal())
	slog.Info("index_rebuilt",
		"documents", len(docs),
		"chunks", len(chunks),
		"dimension", next.index.Dimension(),
		"build_id", next.buildID,
	)
	return len(chunks), nil
}

func (s *Store) buildChunks(docs []domain.DocumentRecord) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(docs)*2)
	for _, raw := range docs {
		rec := domain.NormalizeRecord(raw)
		text := rec.SearchableText()
		if text == "" {
			slog.Debug("ingest_document_skipped", "doc_id", rec.ID, "reason", "empty text")
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(rec.URL+"\x00"+rec.Title)).String()
			slog.Warn("ingest_document_without_id", "derived_id", rec.ID, "url", rec.URL)
		}

		language := rec.Language
		if language == "" {
			language = langdetect.Resolve(s.opts.Detector, text, s.opts.FallbackLanguage)
		}
		docConcepts := s.opts.Enricher.Enrich(text, rec.Topics)

		for i, piece := range s.opts.Chunker.Chunk(text, s.opts.MaxChunkLength) {
			chunks = append(chunks, domain.Chunk{
				ChunkID:   fmt.Sprintf("%s_%d", rec.ID, i),
				DocID:     rec.ID,
				Source:    rec.Source,
				DocType:   rec.DocType,
				Title:     rec.Title,
				Content:   piece,
				Language:  language,
				URL:       rec.URL,
				Published: rec.Published,
				Topics:    append([]string(nil), rec.Topics...),
				Concepts:  append([]string(nil), docConcepts...),
				Position:  i,
				Metadata:  maps.Clone(rec.Extra),
			})
		}
	}
	return chunks
}

// embedAll embeds texts in bounded batches, possibly in parallel, and
// returns normalized vectors in input order.
func (s *Store) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	var (
		progressMu sync.Mutex
		done       int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Parallelism)

	for start := 0; start < len(texts); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(texts))
		group.Go(func() error {
			if s.opts.Limiter != nil {
				if err := s.opts.Limiter.Wait(groupCtx); err != nil {
					return err
				}
			}
			batch, err := s.embedder.Embed(groupCtx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return domain.WrapError(domain.ErrProviderUnavailable, "embed batch",
					fmt.Errorf("got %d vectors for %d texts", len(batch), end-start))
			}
			for i, vec := range batch {
				if len(vec) != s.embedder.Dimension() {
					return domain.WrapError(domain.ErrProviderUnavailable, "embed batch",
						fmt.Errorf("vector has dimension %d, want %d", len(vec), s.embedder.Dimension()))
				}
				Normalize(vec)
				vectors[start+i] = vec
			}

			if s.opts.Progress != nil {
				progressMu.Lock()
				done += end - start
				s.opts.Progress(done, len(texts))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}

// Search embeds the query and returns up to k chunks matching filter, best
// first. Candidates are over-fetched when a filter will drop some of them.
func (s *Store) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	snap := s.live.Load()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "search", fmt.Errorf("index is not loaded"))
	}
	if k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "embed query", fmt.Errorf("got %d vectors", len(vectors)))
	}
	if got, want := len(vectors[0]), snap.index.Dimension(); got != want {
		return nil, domain.WrapError(domain.ErrCorruptIndex, "search", fmt.Errorf(
			"query embedding has dimension %d, index has %d", got, want))
	}
	queryVec := append([]float32(nil), vectors[0]...)
	Normalize(queryVec)

	overFetch := s.opts.OverFetch
	if filter.IsEmpty() {
		overFetch = 1
	}
	return searchSnapshot(snap, queryVec, k, candidateCount(k, overFetch, snap.index.Len()), filter), nil
}

// candidateCount is min(k*overFetch, total) without overflowing k*overFetch.
func candidateCount(k, overFetch, total int) int {
	if k > total/overFetch {
		return total
	}
	return min(k*overFetch, total)
}

func searchSnapshot(snap *snapshot, query []float32, k, candidates int, filter domain.SearchFilter) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, min(k, candidates))
	for _, hit := range snap.index.Search(query, candidates) {
		if hit.Position == NotFound || hit.Position >= len(snap.chunks) {
			continue
		}
		chunk := snap.chunks[hit.Position]
		if !filter.Matches(chunk) {
			continue
		}
		out = append(out, domain.RetrievalResult{Chunk: chunk, Score: float64(hit.Score)})
		if len(out) == k {
			break
		}
	}
	return out
}

// Stats describes the live snapshot; ok is false when nothing is loaded.
func (s *Store) Stats() (domain.IndexStats, bool) {
	snap := s.live.Load()
	if snap == nil {
		return domain.IndexStats{}, false
	}
	stats := snap.stats
	stats.BySource = maps.Clone(stats.BySource)
	stats.ByDocType = maps.Clone(stats.ByDocType)
	stats.Sources = append([]string(nil), stats.Sources...)
	return stats, true
}

// ConceptGroups returns the concept table recorded with the live snapshot.
func (s *Store) ConceptGroups() []domain.ConceptGroup {
	snap := s.live.Load()
	if snap == nil {
		return nil
	}
	return concepts.CloneGroups(snap.groups)
}

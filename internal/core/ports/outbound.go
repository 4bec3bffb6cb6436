package ports

import (
	"context"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Identifier() string
}

// TextGenerator produces a completion from a system and a user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Chunker splits document text into bounded passages.
type Chunker interface {
	Chunk(text string, maxLength int) []string
}

// ConceptEnricher maps text and topics onto the controlled concept vocabulary.
type ConceptEnricher interface {
	Enrich(text string, topics []string) []string
	Groups() []domain.ConceptGroup
}

// LanguageDetector returns an ISO 639-1 code, or "" when detection is not reliable.
type LanguageDetector interface {
	Detect(text string) string
}

// DocumentSource yields the document batch for a full rebuild.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.DocumentRecord, error)
}

// VectorSearcher runs filtered similarity search over the live snapshot.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error)
}

// VectorStore owns the embedder, similarity index and chunk store.
type VectorStore interface {
	VectorSearcher
	Ingest(ctx context.Context, docs []domain.DocumentRecord) (int, error)
	Save(ctx context.Context, path string) error
	Load(ctx context.Context, path string) error
	Stats() (domain.IndexStats, bool)
	ConceptGroups() []domain.ConceptGroup
}

// IndexEventPublisher notifies readers that a new snapshot was persisted.
type IndexEventPublisher interface {
	PublishIndexUpdated(ctx context.Context, buildID string) error
}

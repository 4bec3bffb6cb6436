package ports

import (
	"context"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

// QueryService answers questions over the live index.
type QueryService interface {
	Query(ctx context.Context, question string, k int, filter domain.SearchFilter) (domain.RAGResult, error)
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error)
}

// IndexManager exposes the reloadable index state.
type IndexManager interface {
	Reload(ctx context.Context) error
	Status() domain.ServiceStatus
	Topics() []domain.ConceptGroup
}

// IndexBuilder runs a full rebuild from a document source.
type IndexBuilder interface {
	Rebuild(ctx context.Context, source DocumentSource) (domain.IndexStats, error)
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
)

// IndexBuildUseCase runs a full rebuild, persists the snapshot and announces
// it to readers.
type IndexBuildUseCase struct {
	store     ports.VectorStore
	indexPath string
	publisher ports.IndexEventPublisher
}

func NewIndexBuildUseCase(store ports.VectorStore, indexPath string, publisher ports.IndexEventPublisher) *IndexBuildUseCase {
	return &IndexBuildUseCase{store: store, indexPath: indexPath, publisher: publisher}
}

func (uc *IndexBuildUseCase) Rebuild(ctx context.Context, source ports.DocumentSource) (domain.IndexStats, error) {
	docs, err := source.Documents(ctx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("read documents: %w", err)
	}

	count, err := uc.store.Ingest(ctx, docs)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("ingest documents: %w", err)
	}

	if uc.indexPath != "" {
		if err := uc.store.Save(ctx, uc.indexPath); err != nil {
			return domain.IndexStats{}, fmt.Errorf("save index: %w", err)
		}
	}

	stats, _ := uc.store.Stats()
	if uc.publisher != nil {
		if err := uc.publisher.PublishIndexUpdated(ctx, stats.BuildID); err != nil {
			// The snapshot is already persisted; readers pick it up on their next reload.
			slog.Warn("index_update_publish_failed", "build_id", stats.BuildID, "error", err)
		}
	}

	slog.Info("index_build_completed",
		"documents", len(docs),
		"chunks", count,
		"build_id", stats.BuildID,
		"path", uc.indexPath,
	)
	return stats, nil
}

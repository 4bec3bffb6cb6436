package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func TestRebuildIngestsSavesAndPublishes(t *testing.T) {
	store := &fakeStore{stats: domain.IndexStats{BuildID: "build-1"}}
	publisher := &fakePublisher{}
	uc := NewIndexBuildUseCase(store, "/data/index", publisher)

	docs := []domain.DocumentRecord{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	stats, err := uc.Rebuild(context.Background(), fakeSource{docs: docs})
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if len(store.ingested) != 2 || store.savedPath != "/data/index" {
		t.Fatalf("expected ingest and save, got %d docs path=%q", len(store.ingested), store.savedPath)
	}
	if stats.ChunkCount != 2 || stats.BuildID != "build-1" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(publisher.buildIDs) != 1 || publisher.buildIDs[0] != "build-1" {
		t.Fatalf("expected one publish, got %v", publisher.buildIDs)
	}
}

func TestRebuildSourceFailure(t *testing.T) {
	store := &fakeStore{}
	uc := NewIndexBuildUseCase(store, "/data/index", nil)

	_, err := uc.Rebuild(context.Background(), fakeSource{err: domain.WrapError(domain.ErrMalformedInput, "open", errors.New("no such file"))})
	if !domain.IsKind(err, domain.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
	if store.ingested != nil {
		t.Fatalf("ingest must not run after source failure")
	}
}

func TestRebuildSaveFailureSkipsPublish(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	publisher := &fakePublisher{}
	uc := NewIndexBuildUseCase(store, "/data/index", publisher)

	if _, err := uc.Rebuild(context.Background(), fakeSource{docs: []domain.DocumentRecord{{ID: "a"}}}); err == nil {
		t.Fatalf("expected save error")
	}
	if len(publisher.buildIDs) != 0 {
		t.Fatalf("must not publish unsaved index")
	}
}

func TestRebuildPublishFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	uc := NewIndexBuildUseCase(store, "/data/index", &fakePublisher{err: errors.New("nats down")})

	if _, err := uc.Rebuild(context.Background(), fakeSource{docs: []domain.DocumentRecord{{ID: "a"}}}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
}

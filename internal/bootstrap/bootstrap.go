package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/policy-radar/internal/config"
	"github.com/kirillkom/policy-radar/internal/core/ports"
	"github.com/kirillkom/policy-radar/internal/core/usecase"
	"github.com/kirillkom/policy-radar/internal/infrastructure/cache"
	"github.com/kirillkom/policy-radar/internal/infrastructure/chunking"
	"github.com/kirillkom/policy-radar/internal/infrastructure/concepts"
	"github.com/kirillkom/policy-radar/internal/infrastructure/langdetect"
	"github.com/kirillkom/policy-radar/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/policy-radar/internal/infrastructure/llm/hashembed"
	"github.com/kirillkom/policy-radar/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/policy-radar/internal/infrastructure/queue/nats"
	"github.com/kirillkom/policy-radar/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/policy-radar/internal/infrastructure/resilience"
	"github.com/kirillkom/policy-radar/internal/infrastructure/source/jsonl"
	"github.com/kirillkom/policy-radar/internal/infrastructure/vector/flat"
)

// Options carries per-entrypoint hooks that are not configuration.
type Options struct {
	Observer usecase.QueryObserver
	Progress func(done, total int)
	// WithoutBus skips the NATS connection even when it is enabled in config.
	WithoutBus bool
	// BreakerObserver receives circuit breaker transitions of every
	// provider and bus call.
	BreakerObserver func(operation, state string)
}

type App struct {
	Config config.Config

	Store   *flat.Store
	Service *usecase.RAGService
	Builder *usecase.IndexBuildUseCase
	Bus     *nats.Bus

	closeFn func()
}

func New(_ context.Context, cfg config.Config, opts Options) (*App, error) {
	providerPolicy := providerResilience(cfg, opts.BreakerObserver)
	embedder, err := newEmbedder(cfg, providerPolicy)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg, providerPolicy)
	if err != nil {
		return nil, err
	}

	detector := langdetect.New(cfg.LanguageMinConfidence)
	groups := concepts.DefaultGroups()

	var limiter *rate.Limiter
	if cfg.EmbedRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRequestsPerSecond), max(int(cfg.EmbedRequestsPerSecond), 1))
	}

	store := flat.New(embedder, flat.Options{
		Chunker:          chunking.NewSentenceChunker(cfg.ChunkMaxLength),
		Enricher:         concepts.NewEnricher(groups),
		Detector:         detector,
		MaxChunkLength:   cfg.ChunkMaxLength,
		BatchSize:        cfg.EmbedBatchSize,
		Parallelism:      cfg.EmbedParallelism,
		OverFetch:        cfg.OverFetch,
		FallbackLanguage: cfg.FallbackLanguage,
		Limiter:          limiter,
		Progress:         opts.Progress,
	})

	var searcher ports.VectorSearcher = store
	if cfg.CacheSize > 0 {
		searcher = cache.NewSearchCache(store, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}

	composer := usecase.NewAnswerComposer(generator, usecase.ComposerOptions{
		MaxSources:    cfg.ContextSources,
		ExcerptLength: cfg.ExcerptLength,
		SourceTiers:   cfg.SourceTiers,
	})
	service := usecase.NewRAGService(
		store,
		searcher,
		usecase.NewQueryExpander(groups, concepts.DefaultSynonyms()),
		composer,
		usecase.RAGServiceOptions{
			IndexPath:        cfg.IndexPath,
			DefaultK:         cfg.RetrievalTopK,
			MaxK:             cfg.RetrievalMaxK,
			Detector:         detector,
			FallbackLanguage: cfg.FallbackLanguage,
			Observer:         opts.Observer,
		},
	)

	var bus *nats.Bus
	var publisher ports.IndexEventPublisher
	if cfg.NATSEnabled && !opts.WithoutBus {
		bus, err = nats.New(cfg.NATSURL, nats.Options{
			RebuildSubject:     cfg.NATSRebuildSubject,
			UpdatedSubject:     cfg.NATSUpdatedSubject,
			ResilienceExecutor: resilience.NewExecutor(busResilience(opts.BreakerObserver)),
		})
		if err != nil {
			return nil, fmt.Errorf("init message bus: %w", err)
		}
		publisher = bus
	}

	return &App{
		Config:  cfg,
		Store:   store,
		Service: service,
		Builder: usecase.NewIndexBuildUseCase(store, cfg.IndexPath, publisher),
		Bus:     bus,
		closeFn: func() {
			if bus != nil {
				bus.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// DocumentSource opens the configured rebuild input. The returned closer
// must be called once the rebuild is done.
func (a *App) DocumentSource(ctx context.Context) (ports.DocumentSource, func(), error) {
	switch a.Config.DocumentSource {
	case "postgres":
		db, source, err := OpenPostgresSource(ctx, a.Config.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return source, func() { _ = db.Close() }, nil
	default:
		return jsonl.New(a.Config.DocumentsGlob), func() {}, nil
	}
}

func OpenPostgresSource(ctx context.Context, dsn string) (*sql.DB, *postgres.DocumentSource, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	source := postgres.NewDocumentSource(db)
	if err := source.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, source, nil
}

func providerResilience(cfg config.Config, observe func(string, string)) resilience.Config {
	rc := resilience.ProviderConfig(time.Duration(cfg.ProviderTimeoutSeconds) * time.Second)
	rc.RetryMaxAttempts = cfg.ResilienceMaxAttempts
	rc.RetryInitialBackoff = time.Duration(cfg.ResilienceInitialBackoffMS) * time.Millisecond
	rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenSeconds) * time.Second
	rc.OnStateChange = observe
	return rc
}

func busResilience(observe func(string, string)) resilience.Config {
	rc := resilience.BusConfig()
	rc.OnStateChange = observe
	return rc
}

func newEmbedder(cfg config.Config, policy resilience.Config) (ports.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "hash":
		return hashembed.New(cfg.EmbeddingDimension), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, ollama.Options{
			Executor: resilience.NewExecutor(policy),
		})
		return ollama.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// newGenerator returns a nil generator for "none"; answers then use the
// source listing fallback.
func newGenerator(cfg config.Config, policy resilience.Config) (ports.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case "none":
		slog.Info("generation_disabled")
		return nil, nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic generation requires ANTHROPIC_API_KEY")
		}
		return anthropic.NewGenerator(anthropic.Options{
			BaseURL:     cfg.AnthropicURL,
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.GenerationModel,
			MaxTokens:   cfg.GenerationMaxTokens,
			Temperature: cfg.GenerationTemperature,
			Executor:    resilience.NewExecutor(policy),
		}), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, ollama.Options{
			Executor: resilience.NewExecutor(policy),
		})
		return ollama.NewGenerator(client, cfg.GenerationModel, cfg.GenerationTemperature), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

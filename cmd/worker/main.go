package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
	"github.com/kirillkom/policy-radar/internal/config"
	"github.com/kirillkom/policy-radar/internal/infrastructure/queue/nats"
	"github.com/kirillkom/policy-radar/internal/observability/logging"
	"github.com/kirillkom/policy-radar/internal/observability/metrics"
)

const rebuildTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("POLICY_RADAR_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{BreakerObserver: workerMetrics.ObserveBreakerState})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	rebuild := func(ctx context.Context, reason string) error {
		rebuildCtx, cancel := context.WithTimeout(ctx, rebuildTimeout)
		defer cancel()

		workerMetrics.StartRebuild()
		started := time.Now()
		source, closeSource, err := app.DocumentSource(rebuildCtx)
		if err != nil {
			workerMetrics.FinishRebuild(time.Since(started), 0, err)
			return err
		}
		defer closeSource()

		slog.Info("rebuild_started", "reason", reason, "source", cfg.DocumentSource)
		stats, err := app.Builder.Rebuild(rebuildCtx, source)
		workerMetrics.FinishRebuild(time.Since(started), stats.ChunkCount, err)
		return err
	}

	if cfg.RebuildOnStart || app.Bus == nil {
		if err := rebuild(ctx, "startup"); err != nil {
			slog.Error("rebuild_failed", "reason", "startup", "error", err)
			if app.Bus == nil {
				os.Exit(1)
			}
		}
	}
	if app.Bus == nil {
		slog.Info("worker_finished", "detail", "messaging disabled, ran a single rebuild")
		return
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSRebuildSubject)
	err = app.Bus.SubscribeRebuildRequests(ctx, func(handlerCtx context.Context, req nats.RebuildRequest) error {
		if !req.RequestedAt.IsZero() {
			workerMetrics.ObserveRequestLag(time.Since(req.RequestedAt))
		}
		return rebuild(handlerCtx, req.Reason)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

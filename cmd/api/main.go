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

	httpadapter "github.com/kirillkom/policy-radar/internal/adapters/http"
	"github.com/kirillkom/policy-radar/internal/bootstrap"
	"github.com/kirillkom/policy-radar/internal/config"
	"github.com/kirillkom/policy-radar/internal/infrastructure/queue/nats"
	"github.com/kirillkom/policy-radar/internal/observability/logging"
	"github.com/kirillkom/policy-radar/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("POLICY_RADAR_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer:        httpMetrics,
		BreakerObserver: httpMetrics.ObserveBreakerState,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// A missing index leaves the service unavailable; an admin reload or
	// an index-updated event can bring it up later.
	reload := func(ctx context.Context) error {
		err := app.Service.Reload(ctx)
		chunks := 0
		if stats := app.Service.Status().Stats; stats != nil {
			chunks = stats.ChunkCount
		}
		httpMetrics.RecordReload(chunks, err)
		return err
	}
	_ = reload(ctx)

	var trigger httpadapter.RebuildTrigger
	if app.Bus != nil {
		trigger = app.Bus
		go func() {
			err := app.Bus.SubscribeIndexUpdated(ctx, func(handlerCtx context.Context, event nats.IndexUpdatedEvent) error {
				slog.Info("index_updated_received", "build_id", event.BuildID)
				return reload(handlerCtx)
			})
			if err != nil {
				slog.Error("index_updated_subscription_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(httpadapter.Options{
		AdminAPIKey:    cfg.APIAdminKey,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		Metrics:        httpMetrics,
	}, app.Service, app.Service, trigger).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "state", app.Service.State())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

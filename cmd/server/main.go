// Command server starts the video Q&A HTTP service.
//
// It ingests videos (inline or by queueing a job for the ingester), answers
// questions about them as JSON or server-sent events, summarises
// transcripts and publishes usage events to Kafka for the analytics service.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/api"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/app"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	queueIngest := flag.Bool("queue", true, "accept asynchronous ingestion via Kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting video qa server", "port", cfg.Server.Port)

	if err := run(cfg, *queueIngest); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("video qa server stopped")
}

func run(cfg *config.Config, queueIngest bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer eventProducer.Close()
	collector := analytics.NewCollector(eventProducer, 100, 5*time.Second)
	collector.Start(ctx)
	// The final flush needs ctx cancelled and the producer still open.
	defer func() {
		stop()
		collector.Close()
	}()

	a, err := app.New(ctx, cfg, collector, m)
	if err != nil {
		return err
	}
	defer a.Close()

	var queue api.Enqueuer
	if queueIngest {
		jobProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.VideoIngest)
		defer jobProducer.Close()
		queue = ingest.NewPublisher(a.Cache, jobProducer)
		slog.Info("asynchronous ingestion enabled", "topic", cfg.Kafka.Topics.VideoIngest)
	}

	checker := health.NewChecker()
	a.RegisterHealth(checker)

	var limiter *api.Limiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
	}

	h := api.New(a.Engine, queue, api.Timeouts{
		Request: cfg.Server.RequestTimeout,
		Stream:  cfg.Server.StreamTimeout,
	})
	router := api.NewRouter(h, api.RouterOptions{
		RequestTimeout: cfg.Server.RequestTimeout,
		IngestTimeout:  cfg.Ingestion.JobTimeout,
		Health:         checker,
		Limiter:        limiter,
		Metrics:        m,
		CORS:           api.DefaultCORSConfig(),
	})

	// No WriteTimeout: streamed answers outlive any fixed budget and every
	// route bounds itself.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, cfg.RateLimit.Window)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("video qa server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

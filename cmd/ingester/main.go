// Command ingester consumes queued ingest jobs from Kafka and runs each one
// through download, transcription and indexing. Run as many replicas as the
// topic has partitions; jobs for one video always land on the same one.
//
// Usage:
//
//	go run ./cmd/ingester [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/app"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	healthPort := flag.Int("health-port", 8082, "port for health endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingester", "topic", cfg.Kafka.Topics.VideoIngest, "workers", cfg.Ingestion.Workers)

	if err := run(cfg, *healthPort); err != nil {
		slog.Error("ingester error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingester stopped")
}

func run(cfg *config.Config, healthPort int) error {
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
	collector := analytics.NewCollector(eventProducer, 50, 5*time.Second)
	collector.Start(ctx)
	defer func() {
		stop()
		collector.Close()
	}()

	a, err := app.New(ctx, cfg, collector, m)
	if err != nil {
		return err
	}
	defer a.Close()

	handle := ingest.HandleJob(a.Coordinator)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.VideoIngest,
		func(ctx context.Context, key, value []byte) error {
			jobCtx, cancel := context.WithTimeout(ctx, cfg.Ingestion.JobTimeout)
			defer cancel()
			return handle(jobCtx, key, value)
		})
	defer consumer.Close()

	checker := health.NewChecker()
	a.RegisterHealth(checker)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", healthPort),
		Handler:           middleware.RequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	return consumer.Start(ctx)
}

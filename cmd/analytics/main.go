// Command analytics starts the analytics aggregation service.
//
// It consumes usage events (answers, streams, summaries, ingests) from
// Kafka, aggregates them in memory and serves GET /api/v1/analytics. With
// -snapshots it also persists periodic snapshots to PostgreSQL, restores the
// latest one on start and serves them at GET /api/v1/analytics/snapshots.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-snapshots]
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
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port")
	withSnapshots := flag.Bool("snapshots", false, "persist snapshots to postgres")
	interval := flag.Duration("snapshot-interval", time.Minute, "time between snapshots")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	checker := health.NewChecker()

	var snapshots *analytics.SnapshotStore
	if *withSnapshots {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		snapshots, err = analytics.NewSnapshotStore(ctx, db, 1440)
		if err != nil {
			slog.Error("failed to prepare snapshot store", "error", err)
			os.Exit(1)
		}
		if latest, err := snapshots.Latest(ctx); err != nil {
			slog.Warn("could not load latest snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("restored analytics snapshot", "answers", latest.Answers)
		}
		snapshots.StartPeriodicSave(ctx, aggregator, *interval)
		checker.RegisterPinger("postgres", db, false)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	h := analytics.NewHandler(aggregator, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           middleware.RequestID(mux),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

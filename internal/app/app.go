// Package app assembles the engine and its collaborators from configuration.
// The server, the ingester and the CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/media"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/transcribe"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
)

type App struct {
	Config      *config.Config
	Cache       cache.Service
	Retriever   *retrieval.Retriever
	Coordinator *ingest.Coordinator
	Engine      *engine.Engine

	backend retrieval.Backend
}

// New opens the cache and index backends and builds the ingest pipeline and
// the engine on top of them. tracker may be nil.
func New(ctx context.Context, cfg *config.Config, tracker analytics.Tracker, m *metrics.Metrics) (*App, error) {
	store, err := cache.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	slog.Info("cache ready", "backend", cfg.Cache.Backend)

	backend, err := retrieval.Open(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	slog.Info("index ready", "backend", cfg.Retrieval.Backend)

	var embedder embedding.Embedder = embedding.Noop{}
	if cfg.OpenAI.APIKey != "" {
		embedder = embedding.NewOpenAI(cfg.OpenAI, cfg.Retrieval, m)
	} else {
		slog.Warn("no OpenAI key configured, semantic search disabled")
	}
	retriever := retrieval.New(backend, embedder, cfg.Retrieval, m)
	model := llm.NewOpenAI(cfg.OpenAI, m)

	coordinator := ingest.NewCoordinator(
		store,
		media.New(cfg.Ingestion, m),
		transcribe.NewWhisper(cfg.OpenAI, m),
		chunk.NewSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		retriever,
		tracker,
		m,
	).WithRunTimeout(cfg.Ingestion.JobTimeout)

	eng := engine.New(engine.Deps{
		Cache:     store,
		Retriever: retriever,
		LLM:       model,
		Ingester:  coordinator,
		Tracker:   tracker,
		Metrics:   m,
	}, engine.Config{
		DefaultK:         cfg.Retrieval.DefaultK,
		SummaryMaxChunks: cfg.Retrieval.SummaryMaxChunks,
		SingleFlight:     cfg.Engine.SingleFlight,
	})

	return &App{
		Config:      cfg,
		Cache:       store,
		Retriever:   retriever,
		Coordinator: coordinator,
		Engine:      eng,
		backend:     backend,
	}, nil
}

// RegisterHealth adds the cache and, when it can be pinged, the index to c.
// Both are critical: without them no answer can be produced.
func (a *App) RegisterHealth(c *health.Checker) {
	c.RegisterPinger("cache", a.Cache, true)
	if p, ok := a.backend.(health.Pinger); ok {
		c.RegisterPinger("index", p, true)
	}
}

func (a *App) Close() error {
	return errors.Join(a.Retriever.Close(), a.Cache.Close())
}

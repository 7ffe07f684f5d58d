// Package cache stores generated answers and summaries per video, and the
// marker recording that a video has been ingested. Entries never expire; a
// later write for the same key replaces the earlier one.
package cache

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/redis"
)

// Store is the response cache and processed-video registry. Get reports a
// miss for absent keys and for entries holding empty text.
type Store interface {
	HasProcessed(ctx context.Context, videoID string) (bool, error)
	MarkProcessed(ctx context.Context, videoID string) error
	Get(ctx context.Context, videoID, key string) (string, bool, error)
	Put(ctx context.Context, videoID, key, text string) error
	// Invalidate drops every cached response of videoID and returns how
	// many were removed. The processed marker is kept.
	Invalidate(ctx context.Context, videoID string) (int64, error)
}

// Service is a Store with the lifecycle hooks the binaries need.
type Service interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

// SummaryKey is the operation key under which a summary of the given
// length is cached.
func SummaryKey(length string) string {
	return "summarize:" + length
}

// Open builds the store selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config) (Service, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		return NewRedisStore(client, cfg.Cache.KeyPrefix), nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		store, err := NewPostgresStore(ctx, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

package retrieval

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
)

// Open builds the backend selected by cfg.Retrieval.Backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Retrieval.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.Retrieval.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "pgvector":
		p, err := OpenPGVector(ctx, cfg.Postgres.DSN(), cfg.Retrieval.Dimensions)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
	}
}

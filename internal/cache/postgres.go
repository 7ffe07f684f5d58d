package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/postgres"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS processed_videos (
		video_id     TEXT PRIMARY KEY,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS response_cache (
		video_id      TEXT NOT NULL,
		operation_key TEXT NOT NULL,
		response      TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (video_id, operation_key)
	)`,
}

// PostgresStore persists responses and markers in two tables. Writes are
// single-statement upserts, so a key is replaced atomically.
type PostgresStore struct {
	client *postgres.Client
}

// NewPostgresStore creates the tables if they are missing.
func NewPostgresStore(ctx context.Context, client *postgres.Client) (*PostgresStore, error) {
	if err := client.Exec(ctx, postgresSchema...); err != nil {
		return nil, fmt.Errorf("cache schema: %w", err)
	}
	return &PostgresStore{client: client}, nil
}

func (s *PostgresStore) HasProcessed(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_videos WHERE video_id = $1)`, videoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed marker: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, videoID string) error {
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO processed_videos (video_id) VALUES ($1) ON CONFLICT (video_id) DO NOTHING`, videoID,
	)
	if err != nil {
		return fmt.Errorf("setting processed marker: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, videoID, key string) (string, bool, error) {
	var text string
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT response FROM response_cache WHERE video_id = $1 AND operation_key = $2`,
		videoID, key,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cached response: %w", err)
	}
	return text, text != "", nil
}

func (s *PostgresStore) Put(ctx context.Context, videoID, key, text string) error {
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO response_cache (video_id, operation_key, response)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (video_id, operation_key)
		 DO UPDATE SET response = EXCLUDED.response, updated_at = now()`,
		videoID, key, text,
	)
	if err != nil {
		return fmt.Errorf("writing cached response: %w", err)
	}
	return nil
}

func (s *PostgresStore) Invalidate(ctx context.Context, videoID string) (int64, error) {
	res, err := s.client.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE video_id = $1`, videoID)
	if err != nil {
		return 0, fmt.Errorf("invalidating responses of %s: %w", videoID, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}

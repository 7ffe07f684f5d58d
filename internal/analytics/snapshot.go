package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/postgres"
)

var snapshotSchema = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_idx ON analytics_snapshots (captured_at DESC)`,
}

// SnapshotStore persists aggregated stats so the analytics service can
// resume its totals after a restart.
type SnapshotStore struct {
	db        *postgres.Client
	retention int
	logger    *slog.Logger
}

// NewSnapshotStore creates the table if needed. Only the newest retention
// snapshots are kept; zero keeps all of them.
func NewSnapshotStore(ctx context.Context, db *postgres.Client, retention int) (*SnapshotStore, error) {
	if err := db.Exec(ctx, snapshotSchema...); err != nil {
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}
	return &SnapshotStore{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "analytics-snapshots"),
	}, nil
}

// Save writes a snapshot and prunes old ones in the same transaction.
func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("saving analytics snapshot: %w", err)
		}
		if s.retention <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM analytics_snapshots
			WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1
			)`, s.retention)
		if err != nil {
			return fmt.Errorf("pruning analytics snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("analytics snapshot saved", "answers", stats.Answers, "ingests", stats.Ingests)
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *SnapshotStore) Latest(ctx context.Context) (*AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// List returns up to limit snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []AggregatedStats{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots agg every interval and once more on
// shutdown.
func (s *SnapshotStore) StartPeriodicSave(ctx context.Context, agg *Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Save(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.Save(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}

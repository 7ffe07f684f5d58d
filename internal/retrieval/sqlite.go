package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval/lexical"
	_ "modernc.org/sqlite"
)

// SQLite stores chunks in a single-file database: an FTS5 table (porter
// stemming, bm25 ranking) for keywords and float32 BLOBs for vectors.
type SQLite struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS chunks (
		video_id    TEXT    NOT NULL,
		chunk_index INTEGER NOT NULL,
		content     TEXT    NOT NULL,
		embedding   BLOB,
		PRIMARY KEY (video_id, chunk_index)
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		video_id UNINDEXED,
		chunk_index UNINDEXED,
		content,
		tokenize = 'porter'
	)`,
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway index.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: wal mode: %w", err)
		}
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Upsert(ctx context.Context, videoID string, chunks []IndexedChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("sqlite: clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("sqlite: clearing fts: %w", err)
	}
	for _, c := range chunks {
		var blob any
		if len(c.Embedding) > 0 {
			blob = encodeVector(c.Embedding)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(video_id, chunk_index, content, embedding) VALUES (?, ?, ?, ?)`,
			videoID, c.ChunkIndex, c.Text, blob,
		); err != nil {
			return fmt.Errorf("sqlite: inserting chunk %d: %w", c.ChunkIndex, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts(video_id, chunk_index, content) VALUES (?, ?, ?)`,
			videoID, c.ChunkIndex, c.Text,
		); err != nil {
			return fmt.Errorf("sqlite: indexing chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) VectorCandidates(ctx context.Context, videoID string, query []float32, limit int) ([]Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, content, embedding FROM chunks
		 WHERE video_id = ? AND embedding IS NOT NULL`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector scan: %w", err)
	}
	defer rows.Close()

	var chunks []IndexedChunk
	for rows.Next() {
		var c IndexedChunk
		var blob []byte
		if err := rows.Scan(&c.ChunkIndex, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankByCosine(videoID, query, chunks, limit), nil
}

func (s *SQLite) KeywordCandidates(ctx context.Context, videoID, query string, limit int) ([]Passage, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, content, bm25(chunks_fts) FROM chunks_fts
		 WHERE chunks_fts MATCH ? AND video_id = ?
		 ORDER BY bm25(chunks_fts), chunk_index
		 LIMIT ?`,
		match, videoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword search: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		p := Passage{VideoID: videoID}
		var rank float64
		if err := rows.Scan(&p.ChunkIndex, &p.Text, &rank); err != nil {
			return nil, err
		}
		// bm25() is lower-is-better and negative for matches.
		p.Score = -rank
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Transcript(ctx context.Context, videoID string, limit int) ([]Passage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, content FROM chunks WHERE video_id = ? ORDER BY chunk_index LIMIT ?`,
		videoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: transcript: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		p := Passage{VideoID: videoID}
		if err := rows.Scan(&p.ChunkIndex, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// ftsQuery turns free text into an FTS5 OR query of quoted words so user
// punctuation never reaches the FTS5 parser.
func ftsQuery(text string) string {
	words := lexical.Words(text)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

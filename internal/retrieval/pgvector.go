package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval/lexical"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGVector stores chunks in PostgreSQL with the pgvector extension. Vector
// relevance is cosine similarity computed by the server; keyword relevance
// is ts_rank_cd over a generated tsvector column.
type PGVector struct {
	pool *pgxpool.Pool
}

func pgvectorSchema(dims int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transcript_chunks (
			video_id    TEXT    NOT NULL,
			chunk_index INTEGER NOT NULL,
			text        TEXT    NOT NULL,
			embedding   vector(%d),
			tsv         tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
			PRIMARY KEY (video_id, chunk_index)
		)`, dims),
		`CREATE INDEX IF NOT EXISTS transcript_chunks_tsv_idx ON transcript_chunks USING gin (tsv)`,
		`CREATE INDEX IF NOT EXISTS transcript_chunks_embedding_idx ON transcript_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
}

// OpenPGVector connects a pool to dsn and creates the schema for vectors of
// dims dimensions.
func OpenPGVector(ctx context.Context, dsn string, dims int) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	for _, stmt := range pgvectorSchema(dims) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return &PGVector{pool: pool}, nil
}

func (p *PGVector) Upsert(ctx context.Context, videoID string, chunks []IndexedChunk) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM transcript_chunks WHERE video_id = $1`, videoID); err != nil {
			return fmt.Errorf("pgvector: clearing chunks: %w", err)
		}
		batch := &pgx.Batch{}
		for _, c := range chunks {
			var emb any
			if len(c.Embedding) > 0 {
				emb = pgvector.NewVector(c.Embedding)
			}
			batch.Queue(
				`INSERT INTO transcript_chunks (video_id, chunk_index, text, embedding) VALUES ($1, $2, $3, $4)`,
				videoID, c.ChunkIndex, c.Text, emb,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("pgvector: inserting chunks: %w", err)
		}
		return nil
	})
}

func (p *PGVector) VectorCandidates(ctx context.Context, videoID string, query []float32, limit int) ([]Passage, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT chunk_index, text, 1 - (embedding <=> $2) AS score
		 FROM transcript_chunks
		 WHERE video_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2, chunk_index
		 LIMIT $3`,
		videoID, pgvector.NewVector(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pgvector: vector search: %w", err)
	}
	return collectPassages(rows, videoID)
}

func (p *PGVector) KeywordCandidates(ctx context.Context, videoID, query string, limit int) ([]Passage, error) {
	words := lexical.Words(query)
	if len(words) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT chunk_index, text, ts_rank_cd(tsv, q)::float8 AS score
		 FROM transcript_chunks, to_tsquery('english', $2) AS q
		 WHERE video_id = $1 AND tsv @@ q
		 ORDER BY score DESC, chunk_index
		 LIMIT $3`,
		videoID, strings.Join(words, " | "), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pgvector: keyword search: %w", err)
	}
	return collectPassages(rows, videoID)
}

func (p *PGVector) Transcript(ctx context.Context, videoID string, limit int) ([]Passage, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT chunk_index, text, 0::float8 FROM transcript_chunks
		 WHERE video_id = $1 ORDER BY chunk_index LIMIT $2`,
		videoID, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("pgvector: transcript: %w", err)
	}
	return collectPassages(rows, videoID)
}

func (p *PGVector) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PGVector) Close() error {
	p.pool.Close()
	return nil
}

func collectPassages(rows pgx.Rows, videoID string) ([]Passage, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Passage, error) {
		p := Passage{VideoID: videoID}
		err := row.Scan(&p.ChunkIndex, &p.Text, &p.Score)
		return p, err
	})
}

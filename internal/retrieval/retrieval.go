// Package retrieval finds the transcript passages most relevant to a
// question by blending semantic (vector) and keyword relevance, strictly
// within one video.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Passage is a transcript chunk with a relevance score. Backends return raw
// path scores; Search returns blended scores in [0,1].
type Passage struct {
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// IndexedChunk is what a backend stores per chunk. Embedding is nil when
// vectors are disabled.
type IndexedChunk struct {
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// Backend stores chunks and produces per-path candidates. Every method is
// scoped to a single video.
type Backend interface {
	// Upsert replaces all chunks of videoID.
	Upsert(ctx context.Context, videoID string, chunks []IndexedChunk) error
	// VectorCandidates returns up to limit chunks by cosine similarity,
	// higher is better.
	VectorCandidates(ctx context.Context, videoID string, query []float32, limit int) ([]Passage, error)
	// KeywordCandidates returns up to limit chunks by keyword relevance,
	// higher is better.
	KeywordCandidates(ctx context.Context, videoID, query string, limit int) ([]Passage, error)
	// Transcript returns up to limit chunks in chunk order.
	Transcript(ctx context.Context, videoID string, limit int) ([]Passage, error)
	Close() error
}

type Retriever struct {
	backend    Backend
	embedder   embedding.Embedder
	defaultK   int
	multiplier int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(backend Backend, embedder embedding.Embedder, cfg config.RetrievalConfig, m *metrics.Metrics) *Retriever {
	if embedder == nil {
		embedder = embedding.Noop{}
	}
	k := cfg.DefaultK
	if k <= 0 {
		k = 4
	}
	mult := cfg.CandidateMultiplier
	if mult <= 0 {
		mult = 4
	}
	return &Retriever{
		backend:    backend,
		embedder:   embedder,
		defaultK:   k,
		multiplier: mult,
		metrics:    m,
		logger:     slog.Default().With("component", "retriever"),
	}
}

// Add embeds and stores the chunks of one video, replacing earlier ones.
func (r *Retriever) Add(ctx context.Context, videoID string, chunks []chunk.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		vecs, err = r.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks of %s: %w", videoID, err)
		}
	}

	indexed := make([]IndexedChunk, len(chunks))
	for i, c := range chunks {
		indexed[i] = IndexedChunk{ChunkIndex: c.Index, Text: c.Text}
		if len(vecs) == len(chunks) {
			indexed[i].Embedding = vecs[i]
		}
	}
	if err := r.backend.Upsert(ctx, videoID, indexed); err != nil {
		return fmt.Errorf("indexing chunks of %s: %w", videoID, err)
	}
	logger.FromContext(ctx).Info("indexed transcript", "video_id", videoID, "chunks", len(chunks), "vectors", vecs != nil)
	return nil
}

// Search returns the k passages of videoID most relevant to query.
// vectorWeight is clamped to [0,1]; 1 disables the keyword path and 0
// disables the vector path. When no query vector is available the search
// degrades to keyword only. k <= 0 selects the configured default.
func (r *Retriever) Search(ctx context.Context, videoID, query string, vectorWeight float64, k int) ([]Passage, error) {
	if k <= 0 {
		k = r.defaultK
	}
	w := min(max(vectorWeight, 0), 1)
	pool := k * r.multiplier

	var queryVec []float32
	if w > 0 {
		vecs, err := r.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		if len(vecs) == 1 && len(vecs[0]) > 0 {
			queryVec = vecs[0]
		} else {
			r.logger.Debug("no query vector, using keyword relevance only", "video_id", videoID)
			w = 0
		}
	}

	var vec, kw []Passage
	g, gctx := errgroup.WithContext(ctx)
	if w > 0 {
		g.Go(func() error {
			var err error
			vec, err = r.backend.VectorCandidates(gctx, videoID, queryVec, pool)
			if err != nil {
				return fmt.Errorf("vector candidates: %w", err)
			}
			return nil
		})
	}
	if w < 1 {
		g.Go(func() error {
			var err error
			kw, err = r.backend.KeywordCandidates(gctx, videoID, query, pool)
			if err != nil {
				return fmt.Errorf("keyword candidates: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vec = r.sameVideo(videoID, vec)
	kw = r.sameVideo(videoID, kw)
	passages := TopK(Blend(vec, kw, w), k)
	r.metrics.ObservePassages(len(passages))
	return passages, nil
}

// Document returns up to limit chunks of videoID in transcript order.
func (r *Retriever) Document(ctx context.Context, videoID string, limit int) ([]Passage, error) {
	passages, err := r.backend.Transcript(ctx, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading transcript of %s: %w", videoID, err)
	}
	return r.sameVideo(videoID, passages), nil
}

func (r *Retriever) Close() error {
	return r.backend.Close()
}

// sameVideo drops candidates that belong to another video. Backends filter
// by video already; anything that slips through is logged.
func (r *Retriever) sameVideo(videoID string, passages []Passage) []Passage {
	kept := passages[:0]
	for _, p := range passages {
		if p.VideoID != videoID {
			r.logger.Warn("dropping passage from another video",
				"video_id", videoID,
				"passage_video_id", p.VideoID,
				"chunk_index", p.ChunkIndex,
			)
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

package retrieval

import (
	"context"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval/lexical"
)

// Memory keeps every video's chunks in process: a BM25 index for keywords
// and brute-force cosine over stored vectors.
type Memory struct {
	mu     sync.RWMutex
	videos map[string]*memoryVideo
}

type memoryVideo struct {
	chunks []IndexedChunk // ordered by chunk index
	lex    *lexical.Index
}

func NewMemory() *Memory {
	return &Memory{videos: make(map[string]*memoryVideo)}
}

func (m *Memory) Upsert(_ context.Context, videoID string, chunks []IndexedChunk) error {
	v := &memoryVideo{
		chunks: slices.Clone(chunks),
		lex:    lexical.NewIndex(),
	}
	slices.SortFunc(v.chunks, func(a, b IndexedChunk) int { return a.ChunkIndex - b.ChunkIndex })
	for _, c := range v.chunks {
		v.lex.Add(c.ChunkIndex, c.Text)
	}

	m.mu.Lock()
	m.videos[videoID] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) video(videoID string) *memoryVideo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.videos[videoID]
}

func (m *Memory) VectorCandidates(_ context.Context, videoID string, query []float32, limit int) ([]Passage, error) {
	v := m.video(videoID)
	if v == nil {
		return nil, nil
	}
	return rankByCosine(videoID, query, v.chunks, limit), nil
}

func (m *Memory) KeywordCandidates(_ context.Context, videoID, query string, limit int) ([]Passage, error) {
	v := m.video(videoID)
	if v == nil {
		return nil, nil
	}
	hits := v.lex.Search(query, limit)
	out := make([]Passage, 0, len(hits))
	for _, h := range hits {
		i, ok := slices.BinarySearchFunc(v.chunks, h.ChunkIndex, func(c IndexedChunk, idx int) int { return c.ChunkIndex - idx })
		if !ok {
			continue
		}
		out = append(out, Passage{VideoID: videoID, ChunkIndex: h.ChunkIndex, Text: v.chunks[i].Text, Score: h.Score})
	}
	return out, nil
}

func (m *Memory) Transcript(_ context.Context, videoID string, limit int) ([]Passage, error) {
	v := m.video(videoID)
	if v == nil {
		return nil, nil
	}
	n := len(v.chunks)
	if limit > 0 {
		n = min(n, limit)
	}
	out := make([]Passage, n)
	for i, c := range v.chunks[:n] {
		out[i] = Passage{VideoID: videoID, ChunkIndex: c.ChunkIndex, Text: c.Text}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

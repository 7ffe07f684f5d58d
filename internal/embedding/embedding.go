// Package embedding turns text into vectors for the retriever's semantic
// path.
package embedding

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder returns one vector per input text, in input order. A nil result
// with a nil error means vectors are unavailable and callers fall back to
// keyword search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Noop disables the vector path.
type Noop struct{}

func (Noop) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

// OpenAI embeds through the embeddings API in batches, caching single-text
// lookups (queries) in an LRU.
type OpenAI struct {
	client    *openai.Client
	guard     *provider.Guard
	model     openai.EmbeddingModel
	batchSize int
	cache     *Cache
	logger    *slog.Logger
}

func NewOpenAI(cfg config.OpenAIConfig, rcfg config.RetrievalConfig, m *metrics.Metrics) *OpenAI {
	batch := rcfg.EmbedBatchSize
	if batch <= 0 {
		batch = 64
	}
	return &OpenAI{
		client:    provider.NewClient(cfg),
		guard:     provider.NewGuard("openai-embeddings", cfg, m),
		model:     openai.EmbeddingModel(cfg.EmbeddingModel),
		batchSize: batch,
		cache:     NewCache(rcfg.QueryCacheSize),
		logger:    slog.Default().With("component", "embedding", "model", cfg.EmbeddingModel),
	}
}

func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		if v := e.cache.Get(texts[0]); v != nil {
			return [][]float32{v}, nil
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if len(texts) == 1 {
		e.cache.Put(texts[0], out[0])
	}
	e.logger.Debug("embedded texts", "count", len(texts))
	return out, nil
}

func (e *OpenAI) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := e.guard.Call(ctx, "embed", func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: e.model,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vecs) {
			vecs[d.Index] = d.Embedding
		}
	}
	return vecs, nil
}

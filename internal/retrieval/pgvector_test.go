package retrieval

import (
	"context"
	"os"
	"testing"
)

// Runs against a real PostgreSQL with the vector extension when
// VQA_TEST_PGVECTOR_DSN is set.
func TestPGVectorRoundTrip(t *testing.T) {
	dsn := os.Getenv("VQA_TEST_PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("VQA_TEST_PGVECTOR_DSN not set")
	}
	ctx := context.Background()
	p, err := OpenPGVector(ctx, dsn, 3)
	if err != nil {
		t.Fatalf("OpenPGVector: %v", err)
	}
	defer p.Close()

	chunks := []IndexedChunk{
		{ChunkIndex: 0, Text: "Caching avoids repeated model calls.", Embedding: []float32{1, 0, 0}},
		{ChunkIndex: 1, Text: "Streaming sends tokens as they arrive.", Embedding: []float32{0, 1, 0}},
	}
	if err := p.Upsert(ctx, "pgtest", chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	vec, err := p.VectorCandidates(ctx, "pgtest", []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("VectorCandidates: %v", err)
	}
	if len(vec) != 1 || vec[0].ChunkIndex != 1 {
		t.Errorf("vector = %+v", vec)
	}

	kw, err := p.KeywordCandidates(ctx, "pgtest", "why is caching useful", 5)
	if err != nil {
		t.Fatalf("KeywordCandidates: %v", err)
	}
	if len(kw) != 1 || kw[0].ChunkIndex != 0 {
		t.Errorf("keyword = %+v", kw)
	}

	doc, err := p.Transcript(ctx, "pgtest", 0)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(doc) != 2 || doc[0].ChunkIndex != 0 {
		t.Errorf("transcript = %+v", doc)
	}
}

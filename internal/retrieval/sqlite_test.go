package retrieval

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteKeywordCandidates(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	chunks := []IndexedChunk{
		{ChunkIndex: 0, Text: "An introduction to databases."},
		{ChunkIndex: 1, Text: "Indexes make queries faster by avoiding full scans."},
		{ChunkIndex: 2, Text: "Transactions keep data consistent."},
	}
	if err := s.Upsert(ctx, "v1", chunks); err != nil {
		t.Fatalf("Upsert v1: %v", err)
	}
	if err := s.Upsert(ctx, "v2", []IndexedChunk{{ChunkIndex: 0, Text: "Indexing indexes indexed queries."}}); err != nil {
		t.Fatalf("Upsert v2: %v", err)
	}

	got, err := s.KeywordCandidates(ctx, "v1", "how do indexes speed up queries?", 10)
	if err != nil {
		t.Fatalf("KeywordCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ChunkIndex != 1 || got[0].VideoID != "v1" {
		t.Fatalf("got %+v, want only chunk 1 of v1", got)
	}
	if got[0].Score <= 0 {
		t.Errorf("score = %v, want positive", got[0].Score)
	}

	if got, _ := s.KeywordCandidates(ctx, "v1", `"; DROP TABLE chunks; --`, 10); len(got) != 0 {
		t.Errorf("punctuation query returned %+v", got)
	}
}

func TestSQLiteUpsertReplacesVideo(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	if err := s.Upsert(ctx, "v", []IndexedChunk{{ChunkIndex: 0, Text: "old words"}, {ChunkIndex: 1, Text: "more old words"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, "v", []IndexedChunk{{ChunkIndex: 0, Text: "fresh content"}}); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Transcript(ctx, "v", 0)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(doc) != 1 || doc[0].Text != "fresh content" {
		t.Errorf("transcript = %+v", doc)
	}
	if got, _ := s.KeywordCandidates(ctx, "v", "old", 5); len(got) != 0 {
		t.Errorf("stale fts rows: %+v", got)
	}
}

func TestSQLiteVectorCandidates(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	chunks := []IndexedChunk{
		{ChunkIndex: 0, Text: "a", Embedding: []float32{1, 0, 0}},
		{ChunkIndex: 1, Text: "b", Embedding: []float32{0.9, 0.1, 0}},
		{ChunkIndex: 2, Text: "c", Embedding: []float32{0, 0, 1}},
		{ChunkIndex: 3, Text: "d"},
	}
	if err := s.Upsert(ctx, "v", chunks); err != nil {
		t.Fatal(err)
	}
	got, err := s.VectorCandidates(ctx, "v", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Errorf("got %+v, want chunks 0 then 1", got)
	}
}

func TestSQLiteTranscriptOrderAndLimit(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	chunks := []IndexedChunk{{ChunkIndex: 2, Text: "c"}, {ChunkIndex: 0, Text: "a"}, {ChunkIndex: 1, Text: "b"}}
	if err := s.Upsert(ctx, "v", chunks); err != nil {
		t.Fatal(err)
	}
	got, err := s.Transcript(ctx, "v", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "b" {
		t.Errorf("transcript = %+v", got)
	}
}

func TestFTSQuery(t *testing.T) {
	if got := ftsQuery(`What's "BM25" ranking?`); got != `"bm25" OR "ranking"` {
		t.Errorf("ftsQuery = %s", got)
	}
	if got := ftsQuery("the of and"); got != "" {
		t.Errorf("stop words produced %q", got)
	}
}

package cache

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/redis"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store, videoID string) {
	t.Helper()
	ctx := context.Background()

	if ok, err := s.HasProcessed(ctx, videoID); err != nil || ok {
		t.Fatalf("HasProcessed before mark = %v, %v", ok, err)
	}
	if err := s.MarkProcessed(ctx, videoID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, videoID); err != nil {
		t.Fatalf("MarkProcessed twice: %v", err)
	}
	if ok, err := s.HasProcessed(ctx, videoID); err != nil || !ok {
		t.Fatalf("HasProcessed after mark = %v, %v", ok, err)
	}

	if _, ok, err := s.Get(ctx, videoID, "What is X?"); err != nil || ok {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}
	if err := s.Put(ctx, videoID, "What is X?", "first"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, videoID, "What is X?", "second"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	text, ok, err := s.Get(ctx, videoID, "What is X?")
	if err != nil || !ok || text != "second" {
		t.Fatalf("Get = %q, %v, %v; want last write", text, ok, err)
	}

	// Keys are exact: no case or whitespace folding.
	if _, ok, _ := s.Get(ctx, videoID, "what is x?"); ok {
		t.Error("lower-cased question hit the cache")
	}
	if _, ok, _ := s.Get(ctx, videoID+"-other", "What is X?"); ok {
		t.Error("entry leaked across videos")
	}

	if err := s.Put(ctx, videoID, SummaryKey("short"), ""); err != nil {
		t.Fatalf("Put empty: %v", err)
	}
	if _, ok, _ := s.Get(ctx, videoID, SummaryKey("short")); ok {
		t.Error("empty cached text should read as a miss")
	}

	n, err := s.Invalidate(ctx, videoID)
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n != 2 {
		t.Errorf("Invalidate removed %d entries, want 2", n)
	}
	if _, ok, _ := s.Get(ctx, videoID, "What is X?"); ok {
		t.Error("entry survived invalidation")
	}
	if ok, _ := s.HasProcessed(ctx, videoID); !ok {
		t.Error("invalidation dropped the processed marker")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "vid1")
}

func TestMemoryStoreConcurrentPuts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Put(ctx, "v", "q", fmt.Sprintf("answer %d", i))
		}()
	}
	wg.Wait()
	text, ok, _ := s.Get(ctx, "v", "q")
	if !ok || !strings.HasPrefix(text, "answer ") {
		t.Errorf("Get = %q, %v", text, ok)
	}
}

func TestRedisKeys(t *testing.T) {
	s := NewRedisStore(nil, "vqa:")
	k1 := s.responseKey("abc", "What is X?")
	k2 := s.responseKey("abc", "what is x?")
	if k1 == k2 {
		t.Error("keys must not fold case")
	}
	if !strings.HasPrefix(k1, "vqa:resp:abc:") || len(k1) != len("vqa:resp:abc:")+64 {
		t.Errorf("response key = %s", k1)
	}
	if got := s.processedKey("abc"); got != "vqa:processed:abc" {
		t.Errorf("processed key = %s", got)
	}
}

func TestRedisResponsePatternEscapesGlob(t *testing.T) {
	s := NewRedisStore(nil, "vqa:")
	key := s.responseKey("dQw4w9WgXcQ", "q")
	tests := []struct {
		videoID string
		match   bool
	}{
		{"dQw4w9WgXcQ", true},
		{"*", false},
		{"dQw4w9WgXc?", false},
		{"dQw4w9WgX[a-z]Q", false},
		{`dQw4w9WgXc\Q`, false},
	}
	for _, tt := range tests {
		t.Run(tt.videoID, func(t *testing.T) {
			ok, err := path.Match(s.responsePattern(tt.videoID), key)
			if err != nil {
				t.Fatalf("pattern %q: %v", s.responsePattern(tt.videoID), err)
			}
			if ok != tt.match {
				t.Errorf("pattern %q matches %s = %v, want %v", s.responsePattern(tt.videoID), key, ok, tt.match)
			}
		})
	}
}

func TestSummaryKey(t *testing.T) {
	if got := SummaryKey("long"); got != "summarize:long" {
		t.Errorf("SummaryKey = %s", got)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("VQA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VQA_TEST_REDIS_ADDR not set")
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	s := NewRedisStore(client, fmt.Sprintf("vqatest:%s:", t.Name()))
	defer s.Close()
	ctx := context.Background()
	defer client.FlushByPattern(ctx, s.prefix+"*")

	exerciseStore(t, s, "vid1")
	hits, misses := s.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("VQA_TEST_POSTGRES") == "" {
		t.Skip("VQA_TEST_POSTGRES not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	s, err := NewPostgresStore(context.Background(), client)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer s.Close()
	videoID := "pgtest-" + t.Name()
	ctx := context.Background()
	defer client.DB.ExecContext(ctx, `DELETE FROM processed_videos WHERE video_id = $1`, videoID)

	exerciseStore(t, s, videoID)
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	pkgredis "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/redis"
)

// RedisStore keeps one string key per cached response. Questions are hashed
// into the key so arbitrary user text never shapes the keyspace.
type RedisStore struct {
	client *pkgredis.Client
	prefix string
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisStore(client *pkgredis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "response-cache", "backend", "redis"),
	}
}

func (s *RedisStore) responseKey(videoID, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%sresp:%s:%s", s.prefix, videoID, hex.EncodeToString(sum[:]))
}

// responsePattern matches every response key of videoID and nothing else.
// Glob metacharacters in the id are escaped so a crafted id cannot widen
// the match to other videos.
func (s *RedisStore) responsePattern(videoID string) string {
	return globEscaper.Replace(s.prefix+"resp:"+videoID+":") + "*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func (s *RedisStore) processedKey(videoID string) string {
	return s.prefix + "processed:" + videoID
}

func (s *RedisStore) HasProcessed(ctx context.Context, videoID string) (bool, error) {
	ok, err := s.client.Exists(ctx, s.processedKey(videoID))
	if err != nil {
		return false, fmt.Errorf("checking processed marker: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, videoID string) error {
	if err := s.client.Set(ctx, s.processedKey(videoID), "1", 0); err != nil {
		return fmt.Errorf("setting processed marker: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, videoID, key string) (string, bool, error) {
	text, err := s.client.Get(ctx, s.responseKey(videoID, key))
	if err != nil {
		s.misses.Add(1)
		if pkgredis.IsNilError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading cached response: %w", err)
	}
	if text == "" {
		s.misses.Add(1)
		return "", false, nil
	}
	s.hits.Add(1)
	s.logger.Debug("cache hit", "video_id", videoID)
	return text, true, nil
}

func (s *RedisStore) Put(ctx context.Context, videoID, key, text string) error {
	if err := s.client.Set(ctx, s.responseKey(videoID, key), text, 0); err != nil {
		return fmt.Errorf("writing cached response: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, videoID string) (int64, error) {
	n, err := s.client.FlushByPattern(ctx, s.responsePattern(videoID))
	if err != nil {
		return n, fmt.Errorf("invalidating responses of %s: %w", videoID, err)
	}
	s.logger.Info("cache invalidated", "video_id", videoID, "keys_deleted", n)
	return n, nil
}

// Stats returns hit and miss counts since start.
func (s *RedisStore) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

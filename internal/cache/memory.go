package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process. It is the default for local runs
// and the fake used by engine tests.
type MemoryStore struct {
	mu        sync.RWMutex
	processed map[string]struct{}
	responses map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: make(map[string]struct{}),
		responses: make(map[string]map[string]string),
	}
}

func (s *MemoryStore) HasProcessed(_ context.Context, videoID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[videoID]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[videoID] = struct{}{}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, videoID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text := s.responses[videoID][key]
	return text, text != "", nil
}

func (s *MemoryStore) Put(_ context.Context, videoID, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.responses[videoID]
	if !ok {
		byKey = make(map[string]string)
		s.responses[videoID] = byKey
	}
	byKey[key] = text
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, videoID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.responses[videoID]))
	delete(s.responses, videoID)
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

func (s *MemoryStore) Record(_ context.Context, key string, now time.Time, window time.Duration, capacity int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	before := len(kept)

	kept = append(kept, now)
	if over := len(kept) - capacity; over > 0 {
		kept = append(kept[:0], kept[over:]...)
	}
	s.windows[key] = kept
	return before, len(kept), nil
}

// Len returns the current stored length of key's window.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows[key])
}

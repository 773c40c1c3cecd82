package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps counters in a mutex-protected map. Sufficient at
// single-instance scale; counters do not synchronize across processes, so a
// horizontally scaled deployment should use RedisStore instead.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// Expired entries are evicted lazily, on next touch.
		w = &window{resetAt: now.Add(windowLen)}
		s.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt, nil
}

// Sweep drops every expired window. Optional; bounds memory on long-running
// processes with high key cardinality.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

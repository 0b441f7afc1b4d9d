package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"marksync/internal/application/port"
)

// MemoryStore 纯内存固定窗口计数器
// Eviction is amortized: every call scans for expired entries instead of
// running a background sweeper. Under very low traffic stale entries may
// linger briefly; they are harmless and dropped on the next access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	now func() time.Time // test seam
}

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(ctx context.Context, identity string, window time.Duration) (int64, time.Time, error) {
	now := s.now()
	windowMs := window.Milliseconds()
	bucket := now.UnixMilli() / windowMs
	key := identity + ":" + strconv.FormatInt(bucket, 10)
	resetAt := time.UnixMilli((bucket + 1) * windowMs)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, k)
		}
	}

	e, ok := s.entries[key]
	if !ok || e.expiresAt.Before(now) {
		e = &windowEntry{count: 0, expiresAt: resetAt}
		s.entries[key] = e
	}
	e.count++

	return e.count, e.expiresAt, nil
}

// Len reports the number of live entries, for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ port.WindowStore = (*MemoryStore)(nil)

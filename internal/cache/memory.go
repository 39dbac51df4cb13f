package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It never expires entries
// itself; the Cache filters by age on read.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, domain string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.store[domain]
	return e, ok, nil
}

func (s *MemoryStore) GetSince(_ context.Context, domains []string, since time.Time) (map[string]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(domains))
	for _, d := range domains {
		if e, ok := s.store[d]; ok && e.CheckedAt.After(since) {
			out[d] = e
		}
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.store[e.Domain] = e
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)

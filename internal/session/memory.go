package session

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Set scans for expired sessions.
const sweepEvery = time.Minute

// MemoryStore keeps carts in process. They are lost on restart and are not
// shared between replicas; use the redis store for either.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return cloneData(entry.data), nil
}

func (s *MemoryStore) Set(_ context.Context, id string, data *Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepEvery {
		for key, entry := range s.sessions {
			if !now.Before(entry.expiresAt) {
				delete(s.sessions, key)
			}
		}
		s.lastSweep = now
	}

	s.sessions[id] = memoryEntry{data: cloneData(data), expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

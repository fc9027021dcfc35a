package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 10_000

// MemoryProvider keeps claims in a bounded LRU. When the LRU is full the
// oldest claim is evicted early, which only ever allows a retry through.
type MemoryProvider struct {
	mu     sync.Mutex
	claims *lru.Cache[string, claim]
	now    func() time.Time
}

type claim struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryProvider(size int) (*MemoryProvider, error) {
	claims, err := lru.New[string, claim](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{claims: claims, now: time.Now}, nil
}

func (m *MemoryProvider) Claim(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.claims.Add(key, claim{owner: owner, expiresAt: m.now().Add(ttl)})
	return true, nil
}

func (m *MemoryProvider) Owner(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return c.owner, nil
}

func (m *MemoryProvider) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.claims.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	m.claims.Purge()
	return nil
}

// live must be called with mu held.
func (m *MemoryProvider) live(key string) (claim, bool) {
	c, ok := m.claims.Get(key)
	if !ok {
		return claim{}, false
	}
	if !m.now().Before(c.expiresAt) {
		m.claims.Remove(key)
		return claim{}, false
	}
	return c, true
}

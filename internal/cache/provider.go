// Package cache holds short-lived claims that make mutating requests
// idempotent across retries and replicas.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

var ErrNotFound = errors.New("key not found")

// Provider records who first claimed a key until the claim expires or is
// released.
type Provider interface {
	// Claim stores owner under key only when key is unclaimed and reports
	// whether it did.
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Owner returns the owner of a live claim or ErrNotFound.
	Owner(ctx context.Context, key string) (string, error)
	Release(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderMemory:
		return NewMemoryProvider(defaultMemoryCacheSize)
	case ProviderRedis:
		return NewRedisProvider(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// IdempotencyKey scopes a client-supplied Idempotency-Key to the acting user
// and the route it was sent to.
func IdempotencyKey(userID int64, route, key string) string {
	return fmt.Sprintf("idempotency:%d:%s:%s", userID, route, key)
}

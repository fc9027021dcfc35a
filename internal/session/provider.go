package session

import (
	"context"
	"fmt"
)

const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

type Config struct {
	Provider              string
	RedisConnectionString string
}

// NewStore builds the session store named by cfg.Provider; empty means memory.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderRedis:
		return NewRedisStore(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported session store provider: %s", cfg.Provider)
	}
}

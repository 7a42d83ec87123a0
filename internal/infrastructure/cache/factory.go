package cache

import (
	"context"
	"fmt"

	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the key-value stores used by the application
type Stores struct {
	Views  listing.ViewBuffer
	Typing messaging.TypingStore
	// Redis is nil when the in-memory stores are in use
	Redis *redis.Client
}

// Close releases the Redis connection, if any
func (s *Stores) Close() error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Close()
}

// StoresOption configures NewStores
type StoresOption func(*storesOptions)

type storesOptions struct {
	logger        *zap.Logger
	allowFallback bool
}

// WithLogger sets the logger used to report which backend was chosen
func WithLogger(l *zap.Logger) StoresOption {
	return func(o *storesOptions) { o.logger = l }
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory stores instead of failing. Defaults to true.
func WithInMemoryFallback(allow bool) StoresOption {
	return func(o *storesOptions) { o.allowFallback = allow }
}

// NewStores builds Redis-backed stores when Redis is enabled, in-memory ones otherwise
func NewStores(ctx context.Context, cfg config.RedisConfig, opts ...StoresOption) (*Stores, error) {
	o := storesOptions{logger: zap.NewNop(), allowFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		o.logger.Info("Redis disabled, using in-memory stores")
		return InMemoryStores(), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		if !o.allowFallback {
			return nil, fmt.Errorf("redis required but unavailable: %w", err)
		}
		o.logger.Warn("Redis unavailable, falling back to in-memory stores. "+
			"View counts and typing flags will not be shared between instances.",
			zap.Error(err),
		)
		return InMemoryStores(), nil
	}

	o.logger.Info("Using Redis stores", zap.String("addr", cfg.Addr()))
	return &Stores{
		Views:  NewRedisViewCounter(client),
		Typing: NewRedisTypingStore(client),
		Redis:  client,
	}, nil
}

// InMemoryStores returns process-local stores
func InMemoryStores() *Stores {
	return &Stores{
		Views:  NewInMemoryViewCounter(),
		Typing: NewInMemoryTypingStore(),
	}
}

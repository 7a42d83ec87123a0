package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// viewsKey is one hash of listing id -> views not yet flushed to the database
const viewsKey = KeyPrefix + "listing:views:pending"

// RedisViewCounter buffers listing views in a Redis hash shared by every
// API instance
type RedisViewCounter struct {
	client *redis.Client
}

// NewRedisViewCounter creates a view counter on an existing client
func NewRedisViewCounter(client *redis.Client) *RedisViewCounter {
	return &RedisViewCounter{client: client}
}

// Increment adds one view and returns the pending count
func (c *RedisViewCounter) Increment(ctx context.Context, listingID uuid.UUID) (int64, error) {
	n, err := c.client.HIncrBy(ctx, viewsKey, listingID.String(), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment view counter: %w", err)
	}
	return n, nil
}

// Get returns the pending count, zero for unseen listings
func (c *RedisViewCounter) Get(ctx context.Context, listingID uuid.UUID) (int64, error) {
	n, err := c.client.HGet(ctx, viewsKey, listingID.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read view counter: %w", err)
	}
	return n, nil
}

// Drain reads and deletes the hash in one MULTI block, so views counted
// meanwhile land in a fresh hash
func (c *RedisViewCounter) Drain(ctx context.Context) (map[uuid.UUID]int64, error) {
	var all *redis.MapStringStringCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		all = p.HGetAll(ctx, viewsKey)
		p.Del(ctx, viewsKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain view counters: %w", err)
	}

	out := make(map[uuid.UUID]int64, len(all.Val()))
	for field, raw := range all.Val() {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out[id] = n
	}
	return out, nil
}

// Restore adds counts back to the pending hash
func (c *RedisViewCounter) Restore(ctx context.Context, counts map[uuid.UUID]int64) error {
	if len(counts) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for id, n := range counts {
			p.HIncrBy(ctx, viewsKey, id.String(), n)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore view counters: %w", err)
	}
	return nil
}

// InMemoryViewCounter is a process-local view buffer
type InMemoryViewCounter struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

// NewInMemoryViewCounter creates an empty counter
func NewInMemoryViewCounter() *InMemoryViewCounter {
	return &InMemoryViewCounter{counts: make(map[uuid.UUID]int64)}
}

// Increment adds one view and returns the pending count
func (c *InMemoryViewCounter) Increment(_ context.Context, listingID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[listingID]++
	return c.counts[listingID], nil
}

// Get returns the pending count
func (c *InMemoryViewCounter) Get(_ context.Context, listingID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[listingID], nil
}

// Drain returns the pending counts and starts over
func (c *InMemoryViewCounter) Drain(_ context.Context) (map[uuid.UUID]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.counts
	c.counts = make(map[uuid.UUID]int64)
	return out, nil
}

// Restore adds counts back
func (c *InMemoryViewCounter) Restore(_ context.Context, counts map[uuid.UUID]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, n := range counts {
		c.counts[id] += n
	}
	return nil
}

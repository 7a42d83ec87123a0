package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const typingTxRetries = 5

// RedisTypingStore keeps typing flags in one sorted set per thread, scored
// by expiry time in milliseconds. Expired members are pruned on read.
type RedisTypingStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisTypingStore creates a typing store on an existing client
func NewRedisTypingStore(client *redis.Client) *RedisTypingStore {
	return &RedisTypingStore{client: client, now: time.Now}
}

func typingKey(threadID uuid.UUID) string {
	return KeyPrefix + "thread:typing:" + threadID.String()
}

// SetTyping sets or clears the user's typing flag
func (s *RedisTypingStore) SetTyping(ctx context.Context, threadID, userID uuid.UUID, typing bool, ttl time.Duration) error {
	key := typingKey(threadID)
	if !typing {
		if err := s.client.ZRem(ctx, key, userID.String()).Err(); err != nil {
			return fmt.Errorf("clear typing flag: %w", err)
		}
		return nil
	}

	expires := s.now().Add(ttl)
	// the key lives as long as its longest flag
	set := func(tx *redis.Tx) error {
		current, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZAdd(ctx, key, redis.Z{Score: float64(expires.UnixMilli()), Member: userID.String()})
			if current < ttl {
				p.PExpire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}
	var err error
	for range typingTxRetries {
		if err = s.client.Watch(ctx, set, key); !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("set typing flag: %w", err)
	}
	return nil
}

// TypingUsers returns the users whose typing flag has not expired
func (s *RedisTypingStore) TypingUsers(ctx context.Context, threadID uuid.UUID) ([]uuid.UUID, error) {
	key := typingKey(threadID)
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	var members *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", now)
		members = p.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read typing flags: %w", err)
	}

	out := make([]uuid.UUID, 0, len(members.Val()))
	for _, m := range members.Val() {
		if id, err := uuid.Parse(m); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// InMemoryTypingStore is a process-local typing store
type InMemoryTypingStore struct {
	mu      sync.Mutex
	expires map[uuid.UUID]map[uuid.UUID]time.Time
	now     func() time.Time
}

// NewInMemoryTypingStore creates an empty typing store
func NewInMemoryTypingStore() *InMemoryTypingStore {
	return &InMemoryTypingStore{
		expires: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		now:     time.Now,
	}
}

// SetTyping sets or clears the user's typing flag
func (s *InMemoryTypingStore) SetTyping(_ context.Context, threadID, userID uuid.UUID, typing bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.expires[threadID]
	if !typing {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.expires, threadID)
		}
		return nil
	}
	if users == nil {
		users = make(map[uuid.UUID]time.Time)
		s.expires[threadID] = users
	}
	users[userID] = s.now().Add(ttl)
	return nil
}

// TypingUsers returns the users whose typing flag has not expired
func (s *InMemoryTypingStore) TypingUsers(_ context.Context, threadID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]uuid.UUID, 0)
	for id, exp := range s.expires[threadID] {
		if now.Before(exp) {
			out = append(out, id)
		} else {
			delete(s.expires[threadID], id)
		}
	}
	return out, nil
}

// Sweep drops expired flags of threads nobody has read since. Redis expires
// its keys on its own; the in-memory store needs this run periodically.
func (s *InMemoryTypingStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for threadID, users := range s.expires {
		for userID, exp := range users {
			if !now.Before(exp) {
				delete(users, userID)
				removed++
			}
		}
		if len(users) == 0 {
			delete(s.expires, threadID)
		}
	}
	return removed, nil
}

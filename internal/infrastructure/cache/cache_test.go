package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryViewCounter_Concurrent(t *testing.T) {
	c := NewInMemoryViewCounter()
	id := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, id)
		}()
	}
	wg.Wait()

	n, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	n, err = c.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInMemoryTypingStore(t *testing.T) {
	s := NewInMemoryTypingStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	thread, ana, bob := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.SetTyping(ctx, thread, ana, true, 5*time.Second))
	require.NoError(t, s.SetTyping(ctx, thread, bob, true, time.Second))

	users, err := s.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ana, bob}, users)

	now = now.Add(2 * time.Second)
	users, err = s.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ana}, users)

	require.NoError(t, s.SetTyping(ctx, thread, ana, false, 0))
	users, err = s.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, s.SetTyping(ctx, uuid.New(), ana, false, 0))
}

func TestNewStores_Disabled(t *testing.T) {
	s, err := NewStores(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, s.Redis)
	assert.IsType(t, &InMemoryViewCounter{}, s.Views)
	assert.NoError(t, s.Close())
}

func TestNewStores_Unreachable(t *testing.T) {
	cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	s, err := NewStores(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryTypingStore{}, s.Typing)

	_, err = NewStores(context.Background(), cfg, WithInMemoryFallback(false))
	assert.Error(t, err)
}

func TestInMemoryViewCounter_DrainRestore(t *testing.T) {
	c := NewInMemoryViewCounter()
	ctx := context.Background()
	bike, lamp := uuid.New(), uuid.New()

	for range 3 {
		_, _ = c.Increment(ctx, bike)
	}
	_, _ = c.Increment(ctx, lamp)

	drained, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{bike: 3, lamp: 1}, drained)

	n, _ := c.Get(ctx, bike)
	assert.Zero(t, n, "drain starts a new window")

	n, _ = c.Increment(ctx, bike)
	assert.Equal(t, int64(1), n)

	require.NoError(t, c.Restore(ctx, drained))
	n, _ = c.Get(ctx, bike)
	assert.Equal(t, int64(4), n)
	n, _ = c.Get(ctx, lamp)
	assert.Equal(t, int64(1), n)
}

func TestInMemoryTypingStore_Sweep(t *testing.T) {
	s := NewInMemoryTypingStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	quiet, busy := uuid.New(), uuid.New()

	require.NoError(t, s.SetTyping(ctx, quiet, uuid.New(), true, time.Second))
	require.NoError(t, s.SetTyping(ctx, busy, uuid.New(), true, time.Second))
	require.NoError(t, s.SetTyping(ctx, busy, uuid.New(), true, time.Minute))

	now = now.Add(2 * time.Second)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NotContains(t, s.expires, quiet)
	assert.Len(t, s.expires[busy], 1)

	removed, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/cache"
	"github.com/openground/backend/internal/infrastructure/event"
)

func TestRedisViewCounter_DrainUnderConcurrentIncrements(t *testing.T) {
	client := NewTestRedis(t)
	counter := cache.NewRedisViewCounter(client)
	ctx := context.Background()

	const writers, perWriter = 8, 250
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := a
			if w%2 == 1 {
				id = b
			}
			for range perWriter {
				_, err := counter.Increment(ctx, id)
				assert.NoError(t, err)
			}
		}()
	}

	writersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(writersDone)
	}()

	totals := map[uuid.UUID]int64{}
	drain := func() {
		got, err := counter.Drain(ctx)
		require.NoError(t, err)
		for id, n := range got {
			totals[id] += n
		}
	}
	drains := 0
	for done := false; !done; drains++ {
		select {
		case <-writersDone:
			done = true
		default:
			time.Sleep(time.Millisecond)
		}
		drain()
	}

	assert.Greater(t, drains, 1)
	assert.Equal(t, map[uuid.UUID]int64{a: writers / 2 * perWriter, b: writers / 2 * perWriter}, totals)
	n, err := counter.Get(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisViewCounter_Restore(t *testing.T) {
	client := NewTestRedis(t)
	counter := cache.NewRedisViewCounter(client)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for range 3 {
		_, err := counter.Increment(ctx, a)
		require.NoError(t, err)
	}
	drained, err := counter.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{a: 3}, drained)

	// a view arrives while the flush is failing
	n, err := counter.Increment(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, counter.Restore(ctx, map[uuid.UUID]int64{a: 3, b: 2}))
	require.NoError(t, counter.Restore(ctx, nil))

	n, err = counter.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	drained, err = counter.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{a: 4, b: 2}, drained)

	drained, err = counter.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, drained)
}

func TestRedisTypingStore_PrunesExpiredFlags(t *testing.T) {
	client := NewTestRedis(t)
	store := cache.NewRedisTypingStore(client)
	ctx := context.Background()
	thread, alice, bob := uuid.New(), uuid.New(), uuid.New()
	key := cache.KeyPrefix + "thread:typing:" + thread.String()

	require.NoError(t, store.SetTyping(ctx, thread, bob, true, time.Minute))
	require.NoError(t, store.SetTyping(ctx, thread, alice, true, 150*time.Millisecond))

	users, err := store.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)

	// the short flag does not shorten the key's lifetime
	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)

	time.Sleep(300 * time.Millisecond)
	users, err = store.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, users)

	card, err := client.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), card, "expired member removed on read")

	require.NoError(t, store.SetTyping(ctx, thread, bob, false, time.Minute))
	users, err = store.TypingUsers(ctx, thread)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, store.SetTyping(ctx, thread, alice, true, 100*time.Millisecond))
	require.Eventually(t, func() bool {
		n, err := client.Exists(ctx, key).Result()
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond, "key expires with its last flag")
}

type relayTarget struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *relayTarget) Handle(_ context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *relayTarget) EventTypes() []string { return nil }

func (r *relayTarget) received() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.events...)
}

func TestRedisRelay_RoundTrip(t *testing.T) {
	client := NewTestRedis(t)
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)

	local, remote := &relayTarget{}, &relayTarget{}
	sender := event.NewRedisRelay(client, serializer, local, zap.NewNop(), messaging.EventTypeTyping)
	receiver := event.NewRedisRelay(client, serializer, remote, zap.NewNop(), messaging.EventTypeTyping)
	require.NotEqual(t, sender.Origin(), receiver.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() { errs <- sender.Run(ctx) }()
	go func() { errs <- receiver.Run(ctx) }()

	require.Eventually(t, func() bool {
		subs, err := client.PubSubNumSub(ctx, event.DefaultRelayChannel).Result()
		return err == nil && subs[event.DefaultRelayChannel] == 2
	}, 5*time.Second, 20*time.Millisecond)

	thread, user := uuid.New(), uuid.New()
	require.NoError(t, sender.Handle(ctx, messaging.NewTypingEvent(thread, user, true)))

	require.Eventually(t, func() bool { return len(remote.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	got, ok := remote.received()[0].(*messaging.TypingEvent)
	require.True(t, ok)
	assert.Equal(t, thread, got.AggregateID())
	assert.Equal(t, user, got.UserID)
	assert.True(t, got.Typing)

	// the sender drops its own envelope
	assert.Never(t, func() bool { return len(local.received()) > 0 }, 200*time.Millisecond, 20*time.Millisecond)

	cancel()
	for range 2 {
		assert.NoError(t, <-errs)
	}
}

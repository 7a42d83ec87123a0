package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test data",
	}
}

type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panics     bool
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	panics, err := h.panics, h.err
	h.mu.Unlock()
	if panics {
		panic("boom")
	}
	return err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler(messaging.EventTypeMessageSent)
	bus.Subscribe(handler)

	event := newTestEvent(messaging.EventTypeMessageSent)
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEventsAndHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	h1 := newTestHandler()
	h2 := newTestHandler()
	bus.Subscribe(h1, "listing.created")
	bus.Subscribe(h2, "listing.created")

	err := bus.Publish(context.Background(), newTestEvent("listing.created"), newTestEvent("listing.created"))

	require.NoError(t, err)
	assert.Len(t, h1.getHandled(), 2)
	assert.Len(t, h2.getHandled(), 2)
	published, failed := bus.Stats()
	assert.Equal(t, int64(2), published)
	assert.Zero(t, failed)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	wildcard := newTestHandler()
	bus.Subscribe(wildcard)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("anything")))
	assert.Len(t, wildcard.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_FailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("thread.read")
	failing.err = errors.New("handler error")
	panicking := newTestHandler("thread.read")
	panicking.panics = true
	healthy := newTestHandler("thread.read")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("thread.read")))

	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, panicking.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1)
	_, failed := bus.Stats()
	assert.Equal(t, int64(2), failed)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("thread.typing")
	bus.Subscribe(handler)
	_ = bus.Publish(context.Background(), newTestEvent("thread.typing"))

	bus.Unsubscribe(handler)
	_ = bus.Publish(context.Background(), newTestEvent("thread.typing"))

	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_HandlerFunc(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	var got []string
	h := HandlerFunc(func(ctx context.Context, e shared.DomainEvent) error {
		got = append(got, e.EventType())
		return nil
	}, "a", "b")
	bus.Subscribe(h)

	_ = bus.Publish(context.Background(), newTestEvent("a"), newTestEvent("c"), newTestEvent("b"))
	assert.Equal(t, []string{"a", "b"}, got)

	bus.Unsubscribe(h)
	_ = bus.Publish(context.Background(), newTestEvent("a"))
	assert.Len(t, got, 2)
}

func TestInMemoryEventBus_StopRejectsPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	err := bus.Publish(context.Background(), newTestEvent("a"))
	assert.ErrorIs(t, err, ErrBusStopped)

	require.NoError(t, bus.Start(context.Background()))
	assert.NoError(t, bus.Publish(context.Background(), newTestEvent("a")))
}

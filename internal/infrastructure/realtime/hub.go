// Package realtime fans thread events out to Server-Sent Events subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/config"
)

// Stream event names as written to the wire.
const (
	EventMessage   = "message"
	EventTyping    = "typing"
	EventRead      = "read"
	EventHeartbeat = "heartbeat"
	EventConnected = "connected"
)

const (
	defaultMaxClients   = 10000
	defaultClientBuffer = 64
)

var (
	// ErrTooManyClients is returned when the hub is at capacity.
	ErrTooManyClients = errors.New("realtime: maximum number of stream clients reached")
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("realtime: hub closed")
)

// Event is one SSE frame.
type Event struct {
	Name string
	ID   string
	Data json.RawMessage
}

// TypingPayload is the data of a typing event.
type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Typing bool      `json:"typing"`
}

// ReadPayload is the data of a read event.
type ReadPayload struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Observer is told when streams open and close.
type Observer interface {
	StreamOpened(ctx context.Context)
	StreamClosed(ctx context.Context)
}

// Subscriber receives the events of one thread. Events is closed when the
// subscriber is removed or the hub shuts down.
type Subscriber struct {
	ID       uuid.UUID
	ThreadID uuid.UUID
	UserID   uuid.UUID
	ch       chan Event
	removed  bool
}

// Events returns the receive side of the subscriber buffer.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Hub keeps the subscribers of every thread. Sends never block: a full
// subscriber buffer drops the event and the client catches up through
// Last-Event-ID on reconnect.
type Hub struct {
	mu         sync.RWMutex
	threads    map[uuid.UUID]map[*Subscriber]struct{}
	clients    int
	closed     bool
	maxClients int
	buffer     int
	logger     *zap.Logger
	observers  []Observer
	dropped    atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// WithObserver registers a stream observer.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observers = append(h.observers, o) }
}

// NewHub creates a hub sized by cfg.
func NewHub(cfg config.RealtimeConfig, opts ...HubOption) *Hub {
	h := &Hub{
		threads:    make(map[uuid.UUID]map[*Subscriber]struct{}),
		maxClients: cfg.MaxClients,
		buffer:     cfg.ClientBuffer,
		logger:     zap.NewNop(),
	}
	if h.maxClients <= 0 {
		h.maxClients = defaultMaxClients
	}
	if h.buffer <= 0 {
		h.buffer = defaultClientBuffer
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber for threadID.
func (h *Hub) Subscribe(ctx context.Context, threadID, userID uuid.UUID) (*Subscriber, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.clients >= h.maxClients {
		h.mu.Unlock()
		return nil, ErrTooManyClients
	}
	sub := &Subscriber{
		ID:       uuid.New(),
		ThreadID: threadID,
		UserID:   userID,
		ch:       make(chan Event, h.buffer),
	}
	set, ok := h.threads[threadID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.threads[threadID] = set
	}
	set[sub] = struct{}{}
	h.clients++
	h.mu.Unlock()

	for _, o := range h.observers {
		o.StreamOpened(ctx)
	}
	h.logger.Debug("Stream subscriber added",
		zap.String("subscriber_id", sub.ID.String()),
		zap.String("thread_id", threadID.String()),
		zap.String("user_id", userID.String()),
	)
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(ctx context.Context, sub *Subscriber) {
	h.mu.Lock()
	if sub.removed {
		h.mu.Unlock()
		return
	}
	h.removeLocked(sub)
	h.mu.Unlock()

	for _, o := range h.observers {
		o.StreamClosed(ctx)
	}
}

func (h *Hub) removeLocked(sub *Subscriber) {
	sub.removed = true
	close(sub.ch)
	h.clients--
	if set, ok := h.threads[sub.ThreadID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.threads, sub.ThreadID)
		}
	}
}

// Broadcast delivers ev to every subscriber of threadID and returns how
// many received it.
func (h *Hub) Broadcast(threadID uuid.UUID, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.threads[threadID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Warn("Stream subscriber buffer full, dropping event",
				zap.String("subscriber_id", sub.ID.String()),
				zap.String("thread_id", threadID.String()),
				zap.String("event", ev.Name),
			)
		}
	}
	return delivered
}

// EventTypes lists the domain events that reach stream clients.
func (h *Hub) EventTypes() []string {
	return []string{
		messaging.EventTypeMessageSent,
		messaging.EventTypeThreadRead,
		messaging.EventTypeTyping,
	}
}

// Handle converts a messaging domain event into a stream event for the
// thread it belongs to.
func (h *Hub) Handle(_ context.Context, event shared.DomainEvent) error {
	ev, err := ToStreamEvent(event)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	h.Broadcast(event.AggregateID(), *ev)
	return nil
}

// ToStreamEvent maps a domain event to its wire form. Unrelated events map
// to nil.
func ToStreamEvent(event shared.DomainEvent) (*Event, error) {
	var (
		ev      Event
		payload any
	)
	switch e := event.(type) {
	case *messaging.MessageSentEvent:
		return MessageEvent(&e.Message)
	case *messaging.TypingEvent:
		ev = Event{Name: EventTyping}
		payload = TypingPayload{UserID: e.UserID, Typing: e.Typing}
	case *messaging.ThreadReadEvent:
		ev = Event{Name: EventRead}
		payload = ReadPayload{UserID: e.UserID, ReadAt: e.ReadAt.UTC()}
	default:
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s stream event: %w", ev.Name, err)
	}
	ev.Data = data
	return &ev, nil
}

// MessageEvent builds the message frame for m. Replayed and live messages
// share it so clients see one shape.
func MessageEvent(m *messaging.Message) (*Event, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message stream event: %w", err)
	}
	return &Event{Name: EventMessage, ID: m.ID.String(), Data: data}, nil
}

// Clients returns the number of open subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients
}

// ThreadClients returns the number of subscribers of one thread.
func (h *Hub) ThreadClients(threadID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads[threadID])
}

// Dropped returns the number of events discarded because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber. Later subscriptions fail.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var n int
	for _, set := range h.threads {
		for sub := range set {
			h.removeLocked(sub)
			n++
		}
	}
	h.mu.Unlock()

	for range n {
		for _, o := range h.observers {
			o.StreamClosed(ctx)
		}
	}
	h.logger.Info("Realtime hub closed", zap.Int("disconnected", n))
}

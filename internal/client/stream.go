package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/infrastructure/realtime"
)

var (
	// ErrMaxReconnectAttempts ends a stream after too many consecutive failures
	ErrMaxReconnectAttempts = errors.New("client: max reconnect attempts reached")
	// ErrNotSubscribed is returned by Wait for a thread without a stream
	ErrNotSubscribed = errors.New("client: not subscribed")

	errStreamEnded = errors.New("stream ended")
)

// Backoff controls stream reconnects
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultBackoff waits 1s, 2s, 4s... up to 30s and gives up after 5
// consecutive failed attempts
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second, Factor: 2, MaxAttempts: 5}
}

func (b Backoff) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * b.Factor)
	if d > b.Max {
		return b.Max
	}
	return d
}

// EventHandler receives the non-message events of a thread (typing, read)
type EventHandler func(threadID uuid.UUID, ev realtime.Event)

// MessageStream keeps one server-push connection per subscribed thread and
// feeds incoming messages into a ThreadCache.
type MessageStream struct {
	client    *Client
	cache     *ThreadCache
	backoff   Backoff
	onMessage func(Message)
	onEvent   EventHandler
	logger    *zap.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]*subscription
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// StreamOption configures a MessageStream
type StreamOption func(*MessageStream)

// WithBackoff replaces DefaultBackoff
func WithBackoff(b Backoff) StreamOption {
	return func(s *MessageStream) { s.backoff = b }
}

// OnMessage is called once for every message added to the cache
func OnMessage(fn func(Message)) StreamOption {
	return func(s *MessageStream) { s.onMessage = fn }
}

// OnEvent receives typing and read events
func OnEvent(fn EventHandler) StreamOption {
	return func(s *MessageStream) { s.onEvent = fn }
}

// NewMessageStream creates a stream manager writing into cache
func NewMessageStream(c *Client, cache *ThreadCache, opts ...StreamOption) *MessageStream {
	s := &MessageStream{
		client:  c,
		cache:   cache,
		backoff: DefaultBackoff(),
		logger:  c.logger,
		subs:    make(map[uuid.UUID]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe opens the stream of a thread in the background. Subscribing to
// a thread that already has a live stream is a no-op. The stream stops when
// ctx is cancelled, on Unsubscribe or Close, or after MaxAttempts
// consecutive failures.
func (s *MessageStream) Subscribe(ctx context.Context, threadID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[threadID]; ok {
		select {
		case <-sub.done:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	s.subs[threadID] = sub
	go func() {
		defer close(sub.done)
		sub.err = s.run(ctx, threadID)
	}()
}

// Unsubscribe closes the stream of a thread and waits for it to stop
func (s *MessageStream) Unsubscribe(threadID uuid.UUID) {
	s.mu.Lock()
	sub, ok := s.subs[threadID]
	delete(s.subs, threadID)
	s.mu.Unlock()
	if ok {
		sub.cancel()
		<-sub.done
	}
}

// Wait blocks until the stream of a thread stops and returns why: nil when
// it was cancelled, ErrMaxReconnectAttempts or a non-retryable API error
// otherwise.
func (s *MessageStream) Wait(ctx context.Context, threadID uuid.UUID) error {
	s.mu.Lock()
	sub, ok := s.subs[threadID]
	s.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	select {
	case <-sub.done:
		return sub.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops every stream
func (s *MessageStream) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uuid.UUID]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
	}
}

func (s *MessageStream) run(ctx context.Context, threadID uuid.UUID) error {
	log := s.logger.With(zap.String("thread_id", threadID.String()))
	delay := s.backoff.Initial
	failures := 0

	for {
		connected, err := s.connect(ctx, threadID)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
			delay = s.backoff.Initial
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryable(apiErr.Status) {
			log.Warn("Stream rejected", zap.Error(err))
			return err
		}

		failures++
		if failures >= s.backoff.MaxAttempts {
			log.Warn("Stream giving up", zap.Int("attempts", failures), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrMaxReconnectAttempts, err)
		}
		log.Debug("Stream reconnecting",
			zap.Int("attempt", failures),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		delay = s.backoff.next(delay)
	}
}

// retryable reports whether a rejected stream may succeed later
func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// connect runs one connection. connected is true once the server accepted
// the stream, whatever happens after.
func (s *MessageStream) connect(ctx context.Context, threadID uuid.UUID) (connected bool, err error) {
	req, err := s.client.newRequest(ctx, http.MethodGet, "/threads/"+threadID.String()+"/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if last, ok := s.cache.LastID(threadID); ok {
		req.Header.Set("Last-Event-ID", last.String())
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}

	dec := realtime.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, errStreamEnded
			}
			return true, err
		}
		s.dispatch(threadID, ev)
	}
}

func (s *MessageStream) dispatch(threadID uuid.UUID, ev realtime.Event) {
	switch ev.Name {
	case realtime.EventMessage:
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			s.logger.Warn("Dropping undecodable message event", zap.Error(err))
			return
		}
		for _, added := range s.cache.Append(threadID, m) {
			if s.onMessage != nil {
				s.onMessage(added)
			}
		}
	case realtime.EventHeartbeat, realtime.EventConnected:
	default:
		if s.onEvent != nil {
			s.onEvent(threadID, ev)
		}
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
	}
	return apiErr
}

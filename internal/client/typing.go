package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTypingIdle    = 3 * time.Second
	defaultTypingRefresh = 5 * time.Second
	typingRequestTimeout = 5 * time.Second
)

// TypingAPI posts typing state for a thread
type TypingAPI interface {
	SetTyping(ctx context.Context, threadID uuid.UUID, typing bool) error
}

// TypingNotifier turns keystrokes into typing state updates for one
// thread. The first keystroke of a burst posts typing=true, a pause of
// idle posts typing=false. During long bursts typing=true is re-sent at
// most once per refresh interval so the server-side state does not expire.
type TypingNotifier struct {
	api      TypingAPI
	threadID uuid.UUID
	idle     time.Duration
	refresh  *rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	typing  bool
	stopped bool
	gen     uint64
	timer   *time.Timer

	states chan bool
	done   chan struct{}
	cancel context.CancelFunc
}

// TypingOption configures a TypingNotifier
type TypingOption func(*TypingNotifier)

// WithIdle sets how long after the last keystroke typing=false is posted
func WithIdle(d time.Duration) TypingOption {
	return func(n *TypingNotifier) { n.idle = d }
}

// WithRefresh sets the minimum interval between repeated typing=true posts
func WithRefresh(d time.Duration) TypingOption {
	return func(n *TypingNotifier) { n.refresh = rate.NewLimiter(rate.Every(d), 1) }
}

// WithTypingLogger sets the logger used for failed posts
func WithTypingLogger(l *zap.Logger) TypingOption {
	return func(n *TypingNotifier) { n.logger = l }
}

// NewTypingNotifier starts a notifier. Stop must be called to release it.
func NewTypingNotifier(api TypingAPI, threadID uuid.UUID, opts ...TypingOption) *TypingNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &TypingNotifier{
		api:      api,
		threadID: threadID,
		idle:     defaultTypingIdle,
		refresh:  rate.NewLimiter(rate.Every(defaultTypingRefresh), 1),
		logger:   zap.NewNop(),
		states:   make(chan bool, 8),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(n)
	}
	go n.loop(ctx)
	return n
}

// Keystroke records user input. It never blocks on the network.
func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}

	if !n.typing {
		n.typing = true
		n.refresh.Allow()
		n.send(true)
	} else if n.refresh.Allow() {
		n.send(true)
	}

	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, func() { n.expire(gen) })
}

// Typing reports whether the notifier currently considers the user typing
func (n *TypingNotifier) Typing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.typing
}

// Stop cancels the idle timer, posts typing=false if needed and waits for
// pending posts. Keystrokes after Stop are ignored.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
	}
	if n.typing {
		n.typing = false
		n.send(false)
	}
	close(n.states)
	n.mu.Unlock()

	<-n.done
	n.cancel()
}

func (n *TypingNotifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || gen != n.gen || !n.typing {
		return
	}
	n.typing = false
	n.send(false)
}

// send queues a state; callers hold mu. A full queue drops typing=true,
// but typing=false waits up to typingRequestTimeout for room so the other
// side is not left with a stale indicator.
func (n *TypingNotifier) send(typing bool) {
	select {
	case n.states <- typing:
		return
	default:
	}
	if !typing {
		t := time.NewTimer(typingRequestTimeout)
		defer t.Stop()
		select {
		case n.states <- typing:
			return
		case <-t.C:
		}
	}
	n.logger.Debug("Typing update dropped", zap.Bool("typing", typing))
}

func (n *TypingNotifier) loop(ctx context.Context) {
	defer close(n.done)
	for typing := range n.states {
		reqCtx, cancel := context.WithTimeout(ctx, typingRequestTimeout)
		err := n.api.SetTyping(reqCtx, n.threadID, typing)
		cancel()
		if err != nil {
			n.logger.Debug("Typing update failed",
				zap.String("thread_id", n.threadID.String()),
				zap.Bool("typing", typing),
				zap.Error(err),
			)
		}
	}
}

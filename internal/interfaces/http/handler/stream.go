package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/infrastructure/logger"
	"github.com/openground/backend/internal/infrastructure/realtime"
)

const (
	defaultStreamHeartbeat = 30 * time.Second
	lastEventIDHeader      = "Last-Event-ID"
	lastEventIDQuery       = "last_event_id"
)

// StreamSource authorizes stream clients and supplies the replay backlog.
type StreamSource interface {
	Authorize(ctx context.Context, userID, threadID uuid.UUID) (*domain.Thread, error)
	MessagesAfter(ctx context.Context, threadID, afterID uuid.UUID) ([]*domain.Message, error)
}

// StreamHandler serves the per-thread Server-Sent Events stream
type StreamHandler struct {
	BaseHandler
	source    StreamSource
	hub       *realtime.Hub
	heartbeat time.Duration
}

// NewStreamHandler creates a stream handler. A zero heartbeat uses 30s.
func NewStreamHandler(source StreamSource, hub *realtime.Hub, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}
	return &StreamHandler{source: source, hub: hub, heartbeat: heartbeat}
}

// Stream handles GET /threads/:id/stream.
//
// The subscription is registered before the backlog is replayed so nothing
// published in between is lost; a message may then arrive twice and clients
// deduplicate by event id.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	threadID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	thread, err := h.source.Authorize(ctx, userID, threadID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	sub, err := h.hub.Subscribe(ctx, thread.ID, userID)
	if err != nil {
		if errors.Is(err, realtime.ErrTooManyClients) || errors.Is(err, realtime.ErrHubClosed) {
			h.ServiceUnavailable(c, "Too many open streams, try again later")
			return
		}
		h.HandleError(c, err)
		return
	}
	defer h.hub.Unsubscribe(context.WithoutCancel(ctx), sub)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	connected, _ := json.Marshal(gin.H{"thread_id": thread.ID, "client_id": sub.ID})
	if !h.write(c, realtime.Event{Name: realtime.EventConnected, Data: connected}) {
		return
	}
	if !h.replay(c, thread.ID) {
		return
	}

	log.Debug("Stream opened", zap.String("thread_id", thread.ID.String()))
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Stream closed by client", zap.String("thread_id", thread.ID.String()))
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if !h.write(c, ev) {
				return
			}
		case now := <-ticker.C:
			if !h.write(c, realtime.Heartbeat(now)) {
				return
			}
		}
	}
}

// replay sends the messages created after the client's last seen id.
// A missing or malformed id replays nothing.
func (h *StreamHandler) replay(c *gin.Context, threadID uuid.UUID) bool {
	raw := c.GetHeader(lastEventIDHeader)
	if raw == "" {
		raw = c.Query(lastEventIDQuery)
	}
	afterID, err := uuid.Parse(raw)
	if err != nil {
		return true
	}

	msgs, err := h.source.MessagesAfter(c.Request.Context(), threadID, afterID)
	if err != nil {
		logger.FromGin(c).Warn("Stream replay failed", zap.String("thread_id", threadID.String()), zap.Error(err))
		return true
	}
	for _, m := range msgs {
		ev, err := realtime.MessageEvent(m)
		if err != nil {
			continue
		}
		if !h.write(c, *ev) {
			return false
		}
	}
	return true
}

func (h *StreamHandler) write(c *gin.Context, ev realtime.Event) bool {
	if err := realtime.Encode(c.Writer, ev); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

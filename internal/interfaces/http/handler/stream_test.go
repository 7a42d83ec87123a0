package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/openground/backend/internal/infrastructure/realtime"
	"github.com/openground/backend/internal/interfaces/http/dto"
	"github.com/openground/backend/internal/interfaces/http/middleware"
)

type stubStreamSource struct {
	thread   *domain.Thread
	backlog  []*domain.Message
	gotAfter uuid.UUID
}

func (s *stubStreamSource) Authorize(_ context.Context, userID, threadID uuid.UUID) (*domain.Thread, error) {
	if threadID != s.thread.ID {
		return nil, shared.NewDomainError("NOT_FOUND", "thread not found")
	}
	if !s.thread.HasParticipant(userID) {
		return nil, shared.NewDomainError("FORBIDDEN", "You are not a participant of this thread")
	}
	return s.thread, nil
}

func (s *stubStreamSource) MessagesAfter(_ context.Context, _, afterID uuid.UUID) ([]*domain.Message, error) {
	s.gotAfter = afterID
	return s.backlog, nil
}

type streamFixture struct {
	source *stubStreamSource
	hub    *realtime.Hub
	server *httptest.Server
	buyer  uuid.UUID
}

func newStreamFixture(t *testing.T, cfg config.RealtimeConfig, heartbeat time.Duration) *streamFixture {
	t.Helper()
	seller, buyer := uuid.New(), uuid.New()
	thread, err := domain.NewThread(uuid.New(), seller, buyer, "Bike")
	require.NoError(t, err)

	f := &streamFixture{
		source: &stubStreamSource{thread: thread},
		hub:    realtime.NewHub(cfg),
		buyer:  buyer,
	}
	h := NewStreamHandler(f.source, f.hub, heartbeat)

	engine := gin.New()
	engine.GET("/threads/:id/stream", func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(middleware.JWTClaimsKey, &auth.Claims{UserID: user})
		}
		c.Next()
	}, h.Stream)
	f.server = httptest.NewServer(engine)
	t.Cleanup(f.server.Close)
	return f
}

func (f *streamFixture) open(t *testing.T, ctx context.Context, user uuid.UUID, lastEventID string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.server.URL+"/threads/"+f.source.thread.ID.String()+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", user.String())
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStream_ReplaysThenDeliversLiveEvents(t *testing.T) {
	f := newStreamFixture(t, config.RealtimeConfig{}, time.Minute)
	missed, err := domain.NewMessage(f.source.thread.ID, f.source.thread.SellerID, "Still available")
	require.NoError(t, err)
	f.source.backlog = []*domain.Message{missed}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lastSeen := uuid.New()
	resp := f.open(t, ctx, f.buyer, lastSeen.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	dec := realtime.NewDecoder(resp.Body)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, realtime.EventConnected, ev.Name)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, realtime.EventMessage, ev.Name)
	assert.Equal(t, missed.ID.String(), ev.ID)
	assert.Equal(t, lastSeen, f.source.gotAfter)

	payload, _ := json.Marshal(realtime.TypingPayload{UserID: f.source.thread.SellerID, Typing: true})
	assert.Equal(t, 1, f.hub.Broadcast(f.source.thread.ID, realtime.Event{Name: realtime.EventTyping, Data: payload}))

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, realtime.EventTyping, ev.Name)
	assert.JSONEq(t, string(payload), string(ev.Data))

	cancel()
	assert.Eventually(t, func() bool { return f.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_SendsHeartbeats(t *testing.T) {
	f := newStreamFixture(t, config.RealtimeConfig{}, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := f.open(t, ctx, f.buyer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := realtime.NewDecoder(resp.Body)
	_, err := dec.Next()
	require.NoError(t, err)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, realtime.EventHeartbeat, ev.Name)
	assert.Equal(t, uuid.Nil, f.source.gotAfter, "no replay without a cursor")
}

func TestStream_RejectsOutsiders(t *testing.T) {
	f := newStreamFixture(t, config.RealtimeConfig{}, time.Minute)

	resp := f.open(t, context.Background(), uuid.New(), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, dto.ErrCodeForbidden, body.Error.Code)
	assert.Equal(t, 0, f.hub.Clients())
}

func TestStream_AtCapacity(t *testing.T) {
	f := newStreamFixture(t, config.RealtimeConfig{MaxClients: 1}, time.Minute)
	_, err := f.hub.Subscribe(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)

	resp := f.open(t, context.Background(), f.buyer, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, dto.ErrCodeUnavailable, body.Error.Code)
}

func TestStream_RequiresAuthentication(t *testing.T) {
	f := newStreamFixture(t, config.RealtimeConfig{}, time.Minute)

	resp, err := http.Get(f.server.URL + "/threads/" + f.source.thread.ID.String() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

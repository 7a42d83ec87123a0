package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSentEvent(t *testing.T) *messaging.MessageSentEvent {
	t.Helper()
	listingID, seller, buyer := uuid.New(), uuid.New(), uuid.New()
	thread, err := messaging.NewThread(listingID, seller, buyer, "Bike")
	require.NoError(t, err)
	msg, err := thread.Post(buyer, "Is it still available?")
	require.NoError(t, err)
	return messaging.NewMessageSentEvent(thread, msg)
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewEventSerializer()
	RegisterAllEvents(s)
	event := newSentEvent(t)

	data, err := s.Serialize("node-a", event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"origin":"node-a"`)
	assert.Contains(t, string(data), `"type":"message.sent"`)

	origin, decoded, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", origin)

	sent, ok := decoded.(*messaging.MessageSentEvent)
	require.True(t, ok)
	assert.Equal(t, event.AggregateID(), sent.AggregateID())
	assert.Equal(t, event.Message.ID, sent.Message.ID)
	assert.Equal(t, event.Message.Body, sent.Message.Body)
}

func TestEventSerializer_UnknownType(t *testing.T) {
	s := NewEventSerializer()

	data, err := s.Serialize("node-a", newTestEvent("mystery"))
	require.NoError(t, err)

	_, _, err = s.Deserialize(data)
	assert.ErrorContains(t, err, "unknown event type")

	_, _, err = s.Deserialize([]byte("not json"))
	assert.Error(t, err)
}

func TestRegisterAllEvents(t *testing.T) {
	s := NewEventSerializer()
	RegisterAllEvents(s)

	for _, et := range []string{"message.sent", "thread.typing", "thread.read", "listing.created", "review.created", "report.filed"} {
		assert.True(t, s.IsRegistered(et), et)
	}
	types := s.RegisteredTypes()
	assert.IsIncreasing(t, types)
}

func TestRedisRelay_DeliverSkipsOwnEvents(t *testing.T) {
	s := NewEventSerializer()
	RegisterAllEvents(s)
	target := newTestHandler()
	relay := NewRedisRelay(nil, s, target, zap.NewNop(), messaging.EventTypeMessageSent)

	assert.Equal(t, []string{messaging.EventTypeMessageSent}, relay.EventTypes())

	own, err := s.Serialize(relay.Origin(), newSentEvent(t))
	require.NoError(t, err)
	relay.deliver(context.Background(), own)
	assert.Empty(t, target.getHandled())

	remote, err := s.Serialize("other-node", newSentEvent(t))
	require.NoError(t, err)
	relay.deliver(context.Background(), remote)
	require.Len(t, target.getHandled(), 1)
	assert.Equal(t, messaging.EventTypeMessageSent, target.getHandled()[0].EventType())

	relay.deliver(context.Background(), []byte("{"))
	assert.Len(t, target.getHandled(), 1)
}

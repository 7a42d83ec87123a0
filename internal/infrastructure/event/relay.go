package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the Redis channel shared by all API instances
const DefaultRelayChannel = "og:events"

// RedisRelay forwards locally published events to other API instances over
// Redis pub/sub, and hands events from other instances to a local target.
// Subscribe it to the local bus for the event types that must reach clients
// connected to another instance.
type RedisRelay struct {
	client     *redis.Client
	serializer *EventSerializer
	target     shared.EventHandler
	channel    string
	origin     string
	types      []string
	logger     *zap.Logger
}

// NewRedisRelay creates a relay. Remote events are delivered to target only,
// never back onto the local bus, so events cannot loop.
func NewRedisRelay(client *redis.Client, serializer *EventSerializer, target shared.EventHandler, logger *zap.Logger, eventTypes ...string) *RedisRelay {
	return &RedisRelay{
		client:     client,
		serializer: serializer,
		target:     target,
		channel:    DefaultRelayChannel,
		origin:     uuid.NewString(),
		types:      eventTypes,
		logger:     logger,
	}
}

// Origin identifies this process in relayed envelopes
func (r *RedisRelay) Origin() string {
	return r.origin
}

// EventTypes implements shared.EventHandler
func (r *RedisRelay) EventTypes() []string {
	return r.types
}

// Handle publishes a local event to the relay channel
func (r *RedisRelay) Handle(ctx context.Context, event shared.DomainEvent) error {
	data, err := r.serializer.Serialize(r.origin, event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to relay event: %w", err)
	}
	return nil
}

// Run consumes the relay channel until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("event relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, data []byte) {
	origin, event, err := r.serializer.Deserialize(data)
	if err != nil {
		r.logger.Warn("dropping undecodable relayed event", zap.Error(err))
		return
	}
	if origin == r.origin {
		return
	}
	if err := r.target.Handle(ctx, event); err != nil {
		r.logger.Warn("relayed event handler failed",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}

var _ shared.EventHandler = (*RedisRelay)(nil)

package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/openground/backend/internal/domain/favorite"
	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/report"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/domain/shared"
)

// Envelope is the wire form of a domain event crossing process boundaries
type Envelope struct {
	Origin  string          `json:"origin"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventSerializer converts domain events to and from JSON
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{registry: make(map[string]reflect.Type)}
}

// Register records the concrete Go type for eventType
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize wraps an event in an envelope tagged with origin
func (s *EventSerializer) Serialize(origin string, event shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return json.Marshal(Envelope{Origin: origin, Type: event.EventType(), Payload: payload})
}

// Deserialize decodes an envelope back into its registered event type
func (s *EventSerializer) Deserialize(data []byte) (string, shared.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	s.mu.RLock()
	t, ok := s.registry[env.Type]
	s.mu.RUnlock()
	if !ok {
		return env.Origin, nil, fmt.Errorf("unknown event type: %s", env.Type)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(env.Payload, ptr); err != nil {
		return env.Origin, nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event, ok := ptr.(shared.DomainEvent)
	if !ok {
		return env.Origin, nil, fmt.Errorf("type %s does not implement DomainEvent", t)
	}
	return env.Origin, event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns the registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegisterAllEvents registers every domain event the service publishes
func RegisterAllEvents(s *EventSerializer) {
	s.Register(identity.EventTypeUserRegistered, &identity.UserRegisteredEvent{})
	s.Register(identity.EventTypeUserProfileUpdated, &identity.ProfileUpdatedEvent{})
	s.Register(identity.EventTypeUserBanned, &identity.UserBannedEvent{})

	s.Register(listing.EventTypeListingCreated, &listing.ListingCreatedEvent{})
	s.Register(listing.EventTypeListingUpdated, &listing.ListingUpdatedEvent{})
	s.Register(listing.EventTypeListingStatusChanged, &listing.ListingStatusChangedEvent{})
	s.Register(listing.EventTypeListingDeleted, &listing.ListingDeletedEvent{})

	s.Register(favorite.EventTypeFavoriteAdded, &favorite.FavoriteChangedEvent{})
	s.Register(favorite.EventTypeFavoriteRemoved, &favorite.FavoriteChangedEvent{})

	s.Register(messaging.EventTypeThreadStarted, &messaging.ThreadStartedEvent{})
	s.Register(messaging.EventTypeMessageSent, &messaging.MessageSentEvent{})
	s.Register(messaging.EventTypeThreadRead, &messaging.ThreadReadEvent{})
	s.Register(messaging.EventTypeTyping, &messaging.TypingEvent{})

	s.Register(review.EventTypeReviewCreated, &review.ReviewEvent{})
	s.Register(review.EventTypeReviewUpdated, &review.ReviewEvent{})
	s.Register(review.EventTypeReviewDeleted, &review.ReviewEvent{})

	s.Register(report.EventTypeReportFiled, &report.ReportEvent{})
	s.Register(report.EventTypeReportClosed, &report.ReportEvent{})
}

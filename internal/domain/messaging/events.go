package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
)

// AggregateTypeThread is the aggregate type for threads
const AggregateTypeThread = "Thread"

// Messaging event types
const (
	EventTypeThreadStarted = "thread.started"
	EventTypeMessageSent   = "message.sent"
	EventTypeThreadRead    = "thread.read"
	EventTypeTyping        = "thread.typing"
)

// ThreadStartedEvent is published when a new conversation is opened
type ThreadStartedEvent struct {
	shared.BaseDomainEvent
	ListingID uuid.UUID `json:"listing_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	SellerID  uuid.UUID `json:"seller_id"`
}

// NewThreadStartedEvent creates a new ThreadStartedEvent
func NewThreadStartedEvent(t *Thread) *ThreadStartedEvent {
	return &ThreadStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeThreadStarted, AggregateTypeThread, t.ID),
		ListingID:       t.ListingID,
		BuyerID:         t.BuyerID,
		SellerID:        t.SellerID,
	}
}

// MessageSentEvent carries a new message to stream subscribers
type MessageSentEvent struct {
	shared.BaseDomainEvent
	Message Message `json:"message"`
}

// NewMessageSentEvent creates a new MessageSentEvent
func NewMessageSentEvent(t *Thread, m *Message) *MessageSentEvent {
	return &MessageSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMessageSent, AggregateTypeThread, t.ID),
		Message:         *m,
	}
}

// ThreadReadEvent is published when a participant reads the thread
type ThreadReadEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// NewThreadReadEvent creates a new ThreadReadEvent
func NewThreadReadEvent(t *Thread, userID uuid.UUID, at time.Time) *ThreadReadEvent {
	return &ThreadReadEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeThreadRead, AggregateTypeThread, t.ID),
		UserID:          userID,
		ReadAt:          at,
	}
}

// TypingEvent is published when a participant starts or stops typing
type TypingEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
	Typing bool      `json:"typing"`
}

// NewTypingEvent creates a new TypingEvent
func NewTypingEvent(threadID, userID uuid.UUID, typing bool) *TypingEvent {
	return &TypingEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTyping, AggregateTypeThread, threadID),
		UserID:          userID,
		Typing:          typing,
	}
}

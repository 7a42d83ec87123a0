package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ThreadSummary is a thread as seen in a user's inbox
type ThreadSummary struct {
	Thread      *Thread
	LastMessage *Message
	UnreadCount int64
}

// ThreadRepository defines the interface for thread persistence
type ThreadRepository interface {
	// Create inserts a thread with its participants
	Create(ctx context.Context, thread *Thread) error
	FindByID(ctx context.Context, id uuid.UUID) (*Thread, error)
	FindByListingAndBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*Thread, error)
	// ListForUser returns the user's threads, most recently active first
	ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]ThreadSummary, int64, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateLastRead(ctx context.Context, threadID, userID uuid.UUID, at time.Time) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MessageRepository defines the interface for message persistence
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListBefore returns up to limit messages older than before (newest
	// first); before nil means from the latest message.
	ListBefore(ctx context.Context, threadID uuid.UUID, before *uuid.UUID, limit int) ([]*Message, error)
	// ListAfter returns messages created after the given message, oldest first
	ListAfter(ctx context.Context, threadID, after uuid.UUID, limit int) ([]*Message, error)
}

// TypingStore keeps short-lived typing flags per thread
type TypingStore interface {
	SetTyping(ctx context.Context, threadID, userID uuid.UUID, typing bool, ttl time.Duration) error
	TypingUsers(ctx context.Context, threadID uuid.UUID) ([]uuid.UUID, error)
}

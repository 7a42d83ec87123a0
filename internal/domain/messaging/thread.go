// Package messaging models buyer/seller conversations about a listing.
package messaging

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
)

// MaxMessageLength is the maximum number of characters in a message body
const MaxMessageLength = 4000

// Thread is a conversation between the buyer and the seller of a listing.
// There is at most one thread per (listing, buyer).
type Thread struct {
	shared.BaseAggregateRoot
	ListingID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_threads_listing_buyer"`
	BuyerID       uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_threads_listing_buyer;index"`
	SellerID      uuid.UUID     `gorm:"type:uuid;not null;index"`
	Subject       string        `gorm:"type:varchar(120);not null"`
	LastMessageAt time.Time     `gorm:"not null;index"`
	Participants  []Participant `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Thread) TableName() string {
	return "threads"
}

// Participant is a member of a thread with their read marker
type Participant struct {
	ThreadID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	LastReadAt *time.Time
	JoinedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Participant) TableName() string {
	return "thread_participants"
}

// NewThread opens a conversation about a listing. Sellers cannot open threads
// on their own listings.
func NewThread(listingID, sellerID, buyerID uuid.UUID, subject string) (*Thread, error) {
	if listingID == uuid.Nil || sellerID == uuid.Nil || buyerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_THREAD", "Listing, seller and buyer are required")
	}
	if sellerID == buyerID {
		return nil, shared.NewDomainError("CANNOT_MESSAGE_SELF", "You cannot start a conversation about your own listing")
	}
	subject = strings.TrimSpace(subject)
	if utf8.RuneCountInString(subject) > 120 {
		subject = string([]rune(subject)[:120])
	}

	now := time.Now()
	t := &Thread{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ListingID:         listingID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Subject:           subject,
		LastMessageAt:     now,
	}
	t.Participants = []Participant{
		{ThreadID: t.ID, UserID: buyerID, JoinedAt: now},
		{ThreadID: t.ID, UserID: sellerID, JoinedAt: now},
	}
	t.AddDomainEvent(NewThreadStartedEvent(t))
	return t, nil
}

// HasParticipant reports whether userID belongs to the thread
func (t *Thread) HasParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (t.BuyerID == userID || t.SellerID == userID)
}

// Counterpart returns the other participant
func (t *Thread) Counterpart(userID uuid.UUID) uuid.UUID {
	if t.BuyerID == userID {
		return t.SellerID
	}
	return t.BuyerID
}

// Post creates a message from sender and bumps the thread activity timestamp
func (t *Thread) Post(senderID uuid.UUID, body string) (*Message, error) {
	if !t.HasParticipant(senderID) {
		return nil, shared.NewDomainError("NOT_A_PARTICIPANT", "Only participants can post in this thread")
	}
	msg, err := NewMessage(t.ID, senderID, body)
	if err != nil {
		return nil, err
	}
	t.LastMessageAt = msg.CreatedAt
	t.Touch()
	t.AddDomainEvent(NewMessageSentEvent(t, msg))
	return msg, nil
}

// MarkRead moves the reader's read marker to now
func (t *Thread) MarkRead(userID uuid.UUID) (time.Time, error) {
	if !t.HasParticipant(userID) {
		return time.Time{}, shared.NewDomainError("NOT_A_PARTICIPANT", "Only participants can read this thread")
	}
	now := time.Now()
	for i := range t.Participants {
		if t.Participants[i].UserID == userID {
			t.Participants[i].LastReadAt = &now
		}
	}
	t.AddDomainEvent(NewThreadReadEvent(t, userID, now))
	return now, nil
}

// LastReadAt returns the participant's read marker, nil if never read
func (t *Thread) LastReadAt(userID uuid.UUID) *time.Time {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return p.LastReadAt
		}
	}
	return nil
}

// Message is a single chat message
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID  uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_thread_created,priority:1" json:"thread_id"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_thread_created,priority:2" json:"created_at"`
}

// TableName returns the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// ValidateBody trims a message body and checks its length
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", shared.NewDomainError("EMPTY_MESSAGE", "Message cannot be empty")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", shared.NewDomainError("MESSAGE_TOO_LONG", "Message cannot exceed 4000 characters")
	}
	return body, nil
}

// NewMessage validates and creates a message
func NewMessage(threadID, senderID uuid.UUID, body string) (*Message, error) {
	body, err := ValidateBody(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now(),
	}, nil
}

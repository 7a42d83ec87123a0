package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/messaging"
)

// StartThreadRequest is the body of POST /threads
type StartThreadRequest struct {
	ListingID string `json:"listing_id" binding:"required,uuid"`
	Body      string `json:"body" binding:"required,max=4000"`
}

// SendMessageRequest is the body of POST /threads/:id/messages
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=4000"`
}

// TypingRequest is the body of POST /threads/:id/typing
type TypingRequest struct {
	Typing *bool `json:"typing" binding:"required"`
}

// ListMessagesRequest holds the query of GET /threads/:id/messages
type ListMessagesRequest struct {
	Before string `form:"before" binding:"omitempty,uuid"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// MessageResponse is a chat message
type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePage is a window of messages in ascending order
type MessagePage struct {
	Items   []MessageResponse `json:"items"`
	HasMore bool              `json:"has_more"`
}

// ParticipantSummary is the other side of a conversation
type ParticipantSummary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
}

// ThreadResponse is a conversation as seen by one participant
type ThreadResponse struct {
	ID            uuid.UUID           `json:"id"`
	ListingID     uuid.UUID           `json:"listing_id"`
	Subject       string              `json:"subject"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	Counterpart   *ParticipantSummary `json:"counterpart,omitempty"`
	LastMessage   *MessageResponse    `json:"last_message,omitempty"`
	LastMessageAt time.Time           `json:"last_message_at"`
	LastReadAt    *time.Time          `json:"last_read_at,omitempty"`
	UnreadCount   int64               `json:"unread_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

// StartThreadResponse is returned by POST /threads
type StartThreadResponse struct {
	Thread  ThreadResponse  `json:"thread"`
	Message MessageResponse `json:"message"`
	Created bool            `json:"created"`
}

// TypingResponse lists who is typing in a thread
type TypingResponse struct {
	ThreadID uuid.UUID   `json:"thread_id"`
	UserIDs  []uuid.UUID `json:"user_ids"`
}

// UnreadResponse is the unread badge count
type UnreadResponse struct {
	Unread int64 `json:"unread"`
}

// ToMessageResponse converts a domain message
func ToMessageResponse(m *messaging.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func toThreadResponse(t *messaging.Thread, viewerID uuid.UUID) ThreadResponse {
	return ThreadResponse{
		ID:            t.ID,
		ListingID:     t.ListingID,
		Subject:       t.Subject,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		LastMessageAt: t.LastMessageAt,
		LastReadAt:    t.LastReadAt(viewerID),
		CreatedAt:     t.CreatedAt,
	}
}

func toParticipant(u *identity.User) *ParticipantSummary {
	return &ParticipantSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

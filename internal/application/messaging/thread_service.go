package messaging

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
	"github.com/openground/backend/internal/infrastructure/telemetry"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	// ReplayLimit caps how many missed messages a reconnecting stream receives
	ReplayLimit = 500
	// DefaultTypingTTL is how long a typing flag lives without a refresh
	DefaultTypingTTL = 6 * time.Second
)

var errNotParticipant = shared.NewDomainError("FORBIDDEN", "You are not a participant of this thread")

// ThreadService handles conversations between buyers and sellers
type ThreadService struct {
	threads   messaging.ThreadRepository
	messages  messaging.MessageRepository
	listings  listing.ListingRepository
	users     identity.UserRepository
	typing    messaging.TypingStore
	events    shared.EventPublisher
	logger    *zap.Logger
	typingTTL time.Duration
}

// NewThreadService creates a new ThreadService. typingTTL <= 0 uses DefaultTypingTTL.
func NewThreadService(
	threads messaging.ThreadRepository,
	messages messaging.MessageRepository,
	listings listing.ListingRepository,
	users identity.UserRepository,
	typing messaging.TypingStore,
	events shared.EventPublisher,
	logger *zap.Logger,
	typingTTL time.Duration,
) *ThreadService {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &ThreadService{
		threads:   threads,
		messages:  messages,
		listings:  listings,
		users:     users,
		typing:    typing,
		events:    events,
		logger:    logger,
		typingTTL: typingTTL,
	}
}

// StartThread opens a conversation about a listing with a first message. When
// the buyer already has a thread on that listing the message is added to it.
func (s *ThreadService) StartThread(ctx context.Context, buyerID uuid.UUID, req StartThreadRequest) (*StartThreadResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "thread", "start", "buyer_id", buyerID, "listing_id", req.ListingID)
	defer span.End()

	resp, err := s.startThread(ctx, buyerID, req)
	telemetry.RecordError(span, err)
	return resp, err
}

func (s *ThreadService) startThread(ctx context.Context, buyerID uuid.UUID, req StartThreadRequest) (*StartThreadResponse, error) {
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "listing_id must be a UUID")
	}
	if _, err := messaging.ValidateBody(req.Body); err != nil {
		return nil, err
	}
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	thread, err := s.threads.FindByListingAndBuyer(ctx, l.ID, buyerID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		if !l.IsPublic() {
			return nil, shared.NewDomainError("LISTING_UNAVAILABLE", "This listing is not available")
		}
		thread, err = messaging.NewThread(l.ID, l.SellerID, buyerID, l.Title)
		if err != nil {
			return nil, err
		}
		if err := s.threads.Create(ctx, thread); err != nil {
			if !errors.Is(err, shared.ErrAlreadyExists) {
				return nil, err
			}
			// lost a race with a concurrent start
			thread, err = s.threads.FindByListingAndBuyer(ctx, l.ID, buyerID)
			if err != nil {
				return nil, err
			}
		} else {
			created = true
		}
	default:
		return nil, err
	}

	msg, err := s.post(ctx, thread, buyerID, req.Body)
	if err != nil {
		return nil, err
	}

	if created {
		logger.Or(ctx, s.logger).Info("Thread started",
			zap.String("thread_id", thread.ID.String()),
			zap.String("listing_id", l.ID.String()),
		)
	}
	resp := &StartThreadResponse{
		Thread:  toThreadResponse(thread, buyerID),
		Message: ToMessageResponse(msg),
		Created: created,
	}
	resp.Thread.LastMessage = &resp.Message
	if seller, err := s.users.FindByID(ctx, thread.SellerID); err == nil {
		resp.Thread.Counterpart = toParticipant(seller)
	}
	return resp, nil
}

// ListThreads returns the user's inbox, most recently active first
func (s *ThreadService) ListThreads(ctx context.Context, userID uuid.UUID, page, pageSize int) (shared.Paginated[ThreadResponse], error) {
	filter := shared.Filter{Page: page, PageSize: pageSize}.Normalize(100)
	summaries, total, err := s.threads.ListForUser(ctx, userID, filter.Page, filter.PageSize)
	if err != nil {
		return shared.Paginated[ThreadResponse]{}, err
	}

	ids := make([]uuid.UUID, 0, len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.Thread.Counterpart(userID))
	}
	people := make(map[uuid.UUID]*identity.User, len(ids))
	if len(ids) > 0 {
		users, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return shared.Paginated[ThreadResponse]{}, err
		}
		for _, u := range users {
			people[u.ID] = u
		}
	}

	out := make([]ThreadResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp := toThreadResponse(sum.Thread, userID)
		resp.UnreadCount = sum.UnreadCount
		if sum.LastMessage != nil {
			m := ToMessageResponse(sum.LastMessage)
			resp.LastMessage = &m
		}
		if u, ok := people[sum.Thread.Counterpart(userID)]; ok {
			resp.Counterpart = toParticipant(u)
		}
		out = append(out, resp)
	}
	return shared.NewPaginated(out, total, filter.Page, filter.PageSize), nil
}

// GetThread returns one conversation of the user
func (s *ThreadService) GetThread(ctx context.Context, userID, threadID uuid.UUID) (*ThreadResponse, error) {
	thread, err := s.Authorize(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	resp := toThreadResponse(thread, userID)
	if u, err := s.users.FindByID(ctx, thread.Counterpart(userID)); err == nil {
		resp.Counterpart = toParticipant(u)
	}
	return &resp, nil
}

// Authorize loads a thread and checks that userID takes part in it
func (s *ThreadService) Authorize(ctx context.Context, userID, threadID uuid.UUID) (*messaging.Thread, error) {
	thread, err := s.threads.FindByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errNotParticipant
	}
	return thread, nil
}

// ListMessages returns a window of messages in ascending order, ending just
// before the given message id (or at the latest message)
func (s *ThreadService) ListMessages(ctx context.Context, userID, threadID uuid.UUID, req ListMessagesRequest) (*MessagePage, error) {
	if _, err := s.Authorize(ctx, userID, threadID); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	var before *uuid.UUID
	if req.Before != "" {
		id, err := uuid.Parse(req.Before)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "before must be a message id")
		}
		before = &id
	}

	msgs, err := s.messages.ListBefore(ctx, threadID, before, limit+1)
	if err != nil {
		return nil, err
	}
	page := &MessagePage{HasMore: len(msgs) > limit}
	if page.HasMore {
		msgs = msgs[:limit]
	}
	slices.Reverse(msgs)
	page.Items = make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		page.Items = append(page.Items, ToMessageResponse(m))
	}
	return page, nil
}

// SendMessage posts a message and clears the sender's typing flag
func (s *ThreadService) SendMessage(ctx context.Context, userID, threadID uuid.UUID, req SendMessageRequest) (*MessageResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "thread", "send_message", "sender_id", userID, "thread_id", threadID)
	defer span.End()

	thread, err := s.Authorize(ctx, userID, threadID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	msg, err := s.post(ctx, thread, userID, req.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToMessageResponse(msg)
	return &resp, nil
}

func (s *ThreadService) post(ctx context.Context, thread *messaging.Thread, senderID uuid.UUID, body string) (*messaging.Message, error) {
	msg, err := thread.Post(senderID, body)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.threads.TouchLastMessage(ctx, thread.ID, msg.CreatedAt); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to bump thread activity", zap.Error(err))
	}
	if err := s.typing.SetTyping(ctx, thread.ID, senderID, false, s.typingTTL); err != nil {
		logger.Or(ctx, s.logger).Debug("Failed to clear typing flag", zap.Error(err))
	}
	s.publish(ctx, thread)
	return msg, nil
}

// MarkRead moves the user's read marker to now
func (s *ThreadService) MarkRead(ctx context.Context, userID, threadID uuid.UUID) (*ThreadResponse, error) {
	thread, err := s.Authorize(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	at, err := thread.MarkRead(userID)
	if err != nil {
		return nil, err
	}
	if err := s.threads.UpdateLastRead(ctx, thread.ID, userID, at); err != nil {
		return nil, err
	}
	s.publish(ctx, thread)
	resp := toThreadResponse(thread, userID)
	return &resp, nil
}

// UnreadCount returns the number of unread messages across all threads
func (s *ThreadService) UnreadCount(ctx context.Context, userID uuid.UUID) (*UnreadResponse, error) {
	n, err := s.threads.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UnreadResponse{Unread: n}, nil
}

// SetTyping stores the user's typing flag with a TTL and notifies the thread
func (s *ThreadService) SetTyping(ctx context.Context, userID, threadID uuid.UUID, typing bool) error {
	thread, err := s.Authorize(ctx, userID, threadID)
	if err != nil {
		return err
	}
	if err := s.typing.SetTyping(ctx, thread.ID, userID, typing, s.typingTTL); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, messaging.NewTypingEvent(thread.ID, userID, typing)); err != nil {
			logger.Or(ctx, s.logger).Warn("Failed to publish typing event", zap.Error(err))
		}
	}
	return nil
}

// TypingUsers lists the other participants currently typing
func (s *ThreadService) TypingUsers(ctx context.Context, userID, threadID uuid.UUID) (*TypingResponse, error) {
	thread, err := s.Authorize(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	ids, err := s.typing.TypingUsers(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	others := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			others = append(others, id)
		}
	}
	return &TypingResponse{ThreadID: thread.ID, UserIDs: others}, nil
}

// MessagesAfter returns the messages a reconnecting stream missed, oldest
// first. An unknown cursor yields nothing.
func (s *ThreadService) MessagesAfter(ctx context.Context, threadID, afterID uuid.UUID) ([]*messaging.Message, error) {
	msgs, err := s.messages.ListAfter(ctx, threadID, afterID, ReplayLimit)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return []*messaging.Message{}, nil
		}
		return nil, err
	}
	return msgs, nil
}

func (s *ThreadService) publish(ctx context.Context, thread *messaging.Thread) {
	if err := shared.PublishAndClear(ctx, s.events, thread); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish thread events",
			zap.String("thread_id", thread.ID.String()),
			zap.Error(err),
		)
	}
}

package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormThreadRepository implements messaging.ThreadRepository using GORM
type GormThreadRepository struct {
	db *gorm.DB
}

// NewGormThreadRepository creates a new GormThreadRepository
func NewGormThreadRepository(db *gorm.DB) *GormThreadRepository {
	return &GormThreadRepository{db: db}
}

// Create inserts a thread with its participants. A second thread for the
// same (listing, buyer) maps to ErrAlreadyExists.
func (r *GormThreadRepository) Create(ctx context.Context, thread *messaging.Thread) error {
	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID loads a thread with its participants
func (r *GormThreadRepository) FindByID(ctx context.Context, id uuid.UUID) (*messaging.Thread, error) {
	var t messaging.Thread
	if err := r.db.WithContext(ctx).Preload("Participants").First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// FindByListingAndBuyer finds the buyer's thread about a listing
func (r *GormThreadRepository) FindByListingAndBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*messaging.Thread, error) {
	var t messaging.Thread
	if err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// ListForUser returns the user's threads, most recently active first, with
// the last message and the user's unread count for each
func (r *GormThreadRepository) ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]messaging.ThreadSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	db := r.db.WithContext(ctx)
	query := db.Model(&messaging.Thread{}).Where("buyer_id = ? OR seller_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var threads []*messaging.Thread
	if err := query.
		Preload("Participants").
		Order("last_message_at DESC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&threads).Error; err != nil {
		return nil, 0, err
	}

	out := make([]messaging.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		s := messaging.ThreadSummary{Thread: t}

		var last messaging.Message
		err := db.Where("thread_id = ?", t.ID).Order("created_at DESC, id DESC").Take(&last).Error
		switch {
		case err == nil:
			s.LastMessage = &last
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, 0, err
		}

		if s.UnreadCount, err = r.unreadIn(ctx, t.ID, userID, t.LastReadAt(userID)); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (r *GormThreadRepository) unreadIn(ctx context.Context, threadID, userID uuid.UUID, since *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&messaging.Message{}).
		Where("thread_id = ? AND sender_id <> ?", threadID, userID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// TouchLastMessage bumps the thread activity timestamp
func (r *GormThreadRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&messaging.Thread{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message_at": at, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateLastRead moves a participant's read marker
func (r *GormThreadRepository) UpdateLastRead(ctx context.Context, threadID, userID uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&messaging.Participant{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Update("last_read_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountUnread counts messages from others the user has not read across all threads
func (r *GormThreadRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Joins("JOIN thread_participants AS p ON p.thread_id = m.thread_id AND p.user_id = ?", userID).
		Where("m.sender_id <> ?", userID).
		Where("p.last_read_at IS NULL OR m.created_at > p.last_read_at").
		Count(&n).Error
	return n, err
}

// GormMessageRepository implements messaging.MessageRepository using GORM
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GormMessageRepository
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts a message
func (r *GormMessageRepository) Create(ctx context.Context, msg *messaging.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// FindByID finds a message by ID
func (r *GormMessageRepository) FindByID(ctx context.Context, id uuid.UUID) (*messaging.Message, error) {
	var m messaging.Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// cursor loads the message used as a pagination cursor; it must belong to the thread
func (r *GormMessageRepository) cursor(ctx context.Context, threadID, id uuid.UUID) (*messaging.Message, error) {
	var m messaging.Message
	if err := r.db.WithContext(ctx).
		Where("id = ? AND thread_id = ?", id, threadID).
		First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListBefore returns up to limit messages older than before, newest first
func (r *GormMessageRepository) ListBefore(ctx context.Context, threadID uuid.UUID, before *uuid.UUID, limit int) ([]*messaging.Message, error) {
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if before != nil {
		c, err := r.cursor(ctx, threadID, *before)
		if err != nil {
			return nil, err
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
	msgs := make([]*messaging.Message, 0, limit)
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListAfter returns up to limit messages newer than after, oldest first
func (r *GormMessageRepository) ListAfter(ctx context.Context, threadID, after uuid.UUID, limit int) ([]*messaging.Message, error) {
	c, err := r.cursor(ctx, threadID, after)
	if err != nil {
		return nil, err
	}
	msgs := make([]*messaging.Message, 0, limit)
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Where("(created_at > ? OR (created_at = ? AND id > ?))", c.CreatedAt, c.CreatedAt, c.ID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

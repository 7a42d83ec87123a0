// Package review models ratings users leave for each other after a deal.
package review

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a rating of a user, optionally tied to the listing the deal was about.
// A reviewer reviews a given user at most once per listing.
type Review struct {
	shared.BaseAggregateRoot
	ReviewerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	RevieweeID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ListingID  *uuid.UUID `gorm:"type:uuid;index"`
	Rating     int        `gorm:"not null"`
	Comment    string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Review) TableName() string {
	return "reviews"
}

// NewReview validates and creates a review
func NewReview(reviewerID, revieweeID uuid.UUID, listingID *uuid.UUID, rating int, comment string) (*Review, error) {
	if reviewerID == uuid.Nil || revieweeID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_REVIEW", "Reviewer and reviewee are required")
	}
	if reviewerID == revieweeID {
		return nil, shared.NewDomainError("CANNOT_REVIEW_SELF", "You cannot review yourself")
	}
	r := &Review{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ReviewerID:        reviewerID,
		RevieweeID:        revieweeID,
		ListingID:         listingID,
	}
	if err := r.set(rating, comment); err != nil {
		return nil, err
	}
	r.AddDomainEvent(NewReviewEvent(EventTypeReviewCreated, r))
	return r, nil
}

// Edit changes the rating and comment
func (r *Review) Edit(rating int, comment string) error {
	if err := r.set(rating, comment); err != nil {
		return err
	}
	r.IncrementVersion()
	r.AddDomainEvent(NewReviewEvent(EventTypeReviewUpdated, r))
	return nil
}

// IsAuthoredBy reports whether userID wrote the review
func (r *Review) IsAuthoredBy(userID uuid.UUID) bool {
	return r.ReviewerID == userID
}

func (r *Review) set(rating int, comment string) error {
	if rating < MinRating || rating > MaxRating {
		return shared.NewDomainError("INVALID_RATING", "Rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > 2000 {
		return shared.NewDomainError("INVALID_COMMENT", "Comment cannot exceed 2000 characters")
	}
	r.Rating = rating
	r.Comment = comment
	return nil
}

// Summary aggregates the ratings a user received
type Summary struct {
	Average   decimal.Decimal `json:"average"`
	Count     int             `json:"count"`
	Histogram map[int]int     `json:"histogram"`
}

// Summarize builds a rating summary from per-rating counts
func Summarize(histogram map[int]int) Summary {
	s := Summary{Average: decimal.Zero, Histogram: make(map[int]int, MaxRating)}
	total := 0
	for rating := MinRating; rating <= MaxRating; rating++ {
		n := histogram[rating]
		s.Histogram[rating] = n
		s.Count += n
		total += rating * n
	}
	if s.Count > 0 {
		s.Average = decimal.NewFromInt(int64(total)).
			DivRound(decimal.NewFromInt(int64(s.Count)), 2)
	}
	return s
}

// Event types
const (
	AggregateTypeReview    = "Review"
	EventTypeReviewCreated = "review.created"
	EventTypeReviewUpdated = "review.updated"
	EventTypeReviewDeleted = "review.deleted"
)

// ReviewEvent is published when a review is written, edited or removed
type ReviewEvent struct {
	shared.BaseDomainEvent
	ReviewerID uuid.UUID `json:"reviewer_id"`
	RevieweeID uuid.UUID `json:"reviewee_id"`
	Rating     int       `json:"rating"`
}

// NewReviewEvent creates a review event of the given type
func NewReviewEvent(eventType string, r *Review) *ReviewEvent {
	return &ReviewEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeReview, r.ID),
		ReviewerID:      r.ReviewerID,
		RevieweeID:      r.RevieweeID,
		Rating:          r.Rating,
	}
}

// ReviewRepository defines the interface for review persistence
type ReviewRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Review, error)
	Exists(ctx context.Context, reviewerID, revieweeID uuid.UUID, listingID *uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, revieweeID uuid.UUID, filter shared.Filter) ([]*Review, int64, error)
	// Histogram returns rating -> count for the reviews a user received
	Histogram(ctx context.Context, revieweeID uuid.UUID) (map[int]int, error)

	// WithinTx runs fn with a repository bound to a single transaction
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the transactional subset used when writing reviews,
// so that the review row and the reviewee rating change together.
type TxRepository interface {
	Create(ctx context.Context, r *Review) error
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id uuid.UUID) error
	Histogram(ctx context.Context, revieweeID uuid.UUID) (map[int]int, error)
	UpdateUserRating(ctx context.Context, userID uuid.UUID, average decimal.Decimal, count int) error
}

package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
)

// CreateReviewRequest is the body of POST /reviews
type CreateReviewRequest struct {
	RevieweeID string `json:"reviewee_id" binding:"required,uuid"`
	ListingID  string `json:"listing_id" binding:"omitempty,uuid"`
	Rating     int    `json:"rating" binding:"required,min=1,max=5"`
	Comment    string `json:"comment" binding:"max=2000"`
}

// UpdateReviewRequest is the body of PUT /reviews/:id
type UpdateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// ReviewerSummary is the public face of a review author
type ReviewerSummary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
}

// ReviewResponse is a single review
type ReviewResponse struct {
	ID         uuid.UUID        `json:"id"`
	ReviewerID uuid.UUID        `json:"reviewer_id"`
	RevieweeID uuid.UUID        `json:"reviewee_id"`
	ListingID  *uuid.UUID       `json:"listing_id,omitempty"`
	Rating     int              `json:"rating"`
	Comment    string           `json:"comment"`
	Reviewer   *ReviewerSummary `json:"reviewer,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// UserReviewsResponse is one page of reviews plus the rating summary
type UserReviewsResponse struct {
	shared.Paginated[ReviewResponse]
	Summary review.Summary `json:"summary"`
}

func toResponse(r *review.Review) ReviewResponse {
	return ReviewResponse{
		ID:         r.ID,
		ReviewerID: r.ReviewerID,
		RevieweeID: r.RevieweeID,
		ListingID:  r.ListingID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ReviewService writes reviews and keeps the reviewee's rating in step
type ReviewService struct {
	reviews  review.ReviewRepository
	users    identity.UserRepository
	listings listing.ListingRepository
	events   shared.EventPublisher
	logger   *zap.Logger
}

// NewReviewService creates a new ReviewService
func NewReviewService(
	reviews review.ReviewRepository,
	users identity.UserRepository,
	listings listing.ListingRepository,
	events shared.EventPublisher,
	logger *zap.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		users:    users,
		listings: listings,
		events:   events,
		logger:   logger,
	}
}

// Create writes a review. A reviewer rates a user once per listing.
func (s *ReviewService) Create(ctx context.Context, reviewerID uuid.UUID, req CreateReviewRequest) (*ReviewResponse, error) {
	revieweeID, err := uuid.Parse(req.RevieweeID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "reviewee_id must be a UUID")
	}
	var listingID *uuid.UUID
	if req.ListingID != "" {
		id, err := uuid.Parse(req.ListingID)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "listing_id must be a UUID")
		}
		listingID = &id
	}

	rv, err := review.NewReview(reviewerID, revieweeID, listingID, req.Rating, req.Comment)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, revieweeID); err != nil {
		return nil, err
	}
	if listingID != nil {
		l, err := s.listings.FindByID(ctx, *listingID)
		if err != nil {
			return nil, err
		}
		if l.SellerID != revieweeID {
			return nil, shared.NewDomainError("INVALID_REVIEW", "The reviewed user did not sell this listing")
		}
	}

	exists, err := s.reviews.Exists(ctx, reviewerID, revieweeID, listingID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "You have already reviewed this user for this listing")
	}

	if err := s.reviews.WithinTx(ctx, func(tx review.TxRepository) error {
		if err := tx.Create(ctx, rv); err != nil {
			return err
		}
		return recomputeRating(ctx, tx, revieweeID)
	}); err != nil {
		return nil, err
	}

	logger.Or(ctx, s.logger).Info("Review created",
		zap.String("review_id", rv.ID.String()),
		zap.String("reviewee_id", revieweeID.String()),
		zap.Int("rating", rv.Rating),
	)
	s.publish(ctx, rv)
	resp := toResponse(rv)
	return &resp, nil
}

// Update edits the caller's own review
func (s *ReviewService) Update(ctx context.Context, id, userID uuid.UUID, req UpdateReviewRequest) (*ReviewResponse, error) {
	rv, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rv.IsAuthoredBy(userID) {
		return nil, shared.NewDomainError("FORBIDDEN", "You can only edit your own reviews")
	}
	if err := rv.Edit(req.Rating, req.Comment); err != nil {
		return nil, err
	}

	if err := s.reviews.WithinTx(ctx, func(tx review.TxRepository) error {
		if err := tx.Update(ctx, rv); err != nil {
			return err
		}
		return recomputeRating(ctx, tx, rv.RevieweeID)
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, rv)
	resp := toResponse(rv)
	return &resp, nil
}

// Delete removes a review. Authors and admins may delete.
func (s *ReviewService) Delete(ctx context.Context, id, userID uuid.UUID, isAdmin bool) error {
	rv, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rv.IsAuthoredBy(userID) && !isAdmin {
		return shared.NewDomainError("FORBIDDEN", "You can only delete your own reviews")
	}

	if err := s.reviews.WithinTx(ctx, func(tx review.TxRepository) error {
		if err := tx.Delete(ctx, rv.ID); err != nil {
			return err
		}
		return recomputeRating(ctx, tx, rv.RevieweeID)
	}); err != nil {
		return err
	}

	logger.Or(ctx, s.logger).Info("Review deleted",
		zap.String("review_id", rv.ID.String()),
		zap.Bool("by_admin", !rv.IsAuthoredBy(userID)),
	)
	rv.AddDomainEvent(review.NewReviewEvent(review.EventTypeReviewDeleted, rv))
	s.publish(ctx, rv)
	return nil
}

// ListForUser returns the reviews a user received with their rating summary
func (s *ReviewService) ListForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) (*UserReviewsResponse, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	filter := shared.DefaultFilter()
	filter.Page, filter.PageSize = page, pageSize
	filter = filter.Normalize(100)

	items, total, err := s.reviews.ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	histogram, err := s.reviews.Histogram(ctx, userID)
	if err != nil {
		return nil, err
	}

	reviewerIDs := make([]uuid.UUID, 0, len(items))
	for _, rv := range items {
		reviewerIDs = append(reviewerIDs, rv.ReviewerID)
	}
	authors := make(map[uuid.UUID]*identity.User, len(reviewerIDs))
	if len(reviewerIDs) > 0 {
		users, err := s.users.FindByIDs(ctx, reviewerIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			authors[u.ID] = u
		}
	}

	out := make([]ReviewResponse, 0, len(items))
	for _, rv := range items {
		resp := toResponse(rv)
		if u, ok := authors[rv.ReviewerID]; ok {
			resp.Reviewer = &ReviewerSummary{
				ID:          u.ID,
				Username:    u.Username,
				DisplayName: u.DisplayName,
				AvatarURL:   u.AvatarURL,
			}
		}
		out = append(out, resp)
	}
	return &UserReviewsResponse{
		Paginated: shared.NewPaginated(out, total, filter.Page, filter.PageSize),
		Summary:   review.Summarize(histogram),
	}, nil
}

func recomputeRating(ctx context.Context, tx review.TxRepository, userID uuid.UUID) error {
	histogram, err := tx.Histogram(ctx, userID)
	if err != nil {
		return err
	}
	sum := review.Summarize(histogram)
	return tx.UpdateUserRating(ctx, userID, sum.Average, sum.Count)
}

func (s *ReviewService) publish(ctx context.Context, rv *review.Review) {
	if err := shared.PublishAndClear(ctx, s.events, rv); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish review events", zap.Error(err))
	}
}

package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReviewRepository implements review.ReviewRepository using GORM
type GormReviewRepository struct {
	db *gorm.DB
}

// NewGormReviewRepository creates a new GormReviewRepository
func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

// FindByID finds a review by ID
func (r *GormReviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*review.Review, error) {
	var rv review.Review
	if err := r.db.WithContext(ctx).First(&rv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

// Exists reports whether the reviewer already reviewed the user for the
// listing (or without a listing when listingID is nil)
func (r *GormReviewRepository) Exists(ctx context.Context, reviewerID, revieweeID uuid.UUID, listingID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).Model(&review.Review{}).
		Where("reviewer_id = ? AND reviewee_id = ?", reviewerID, revieweeID)
	if listingID != nil {
		q = q.Where("listing_id = ?", *listingID)
	} else {
		q = q.Where("listing_id IS NULL")
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListForUser returns one page of reviews a user received
func (r *GormReviewRepository) ListForUser(ctx context.Context, revieweeID uuid.UUID, filter shared.Filter) ([]*review.Review, int64, error) {
	filter = filter.Normalize(100)
	query := r.db.WithContext(ctx).Model(&review.Review{}).Where("reviewee_id = ?", revieweeID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*review.Review
	if err := query.
		Order(orderClause(filter.OrderBy, filter.OrderDir, ReviewSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Histogram returns rating -> count for the reviews a user received
func (r *GormReviewRepository) Histogram(ctx context.Context, revieweeID uuid.UUID) (map[int]int, error) {
	return histogram(r.db.WithContext(ctx), revieweeID)
}

// WithinTx runs fn inside a transaction
func (r *GormReviewRepository) WithinTx(ctx context.Context, fn func(tx review.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormReviewTx{db: tx})
	})
}

type ratingBucket struct {
	Rating int
	N      int
}

func histogram(db *gorm.DB, revieweeID uuid.UUID) (map[int]int, error) {
	var rows []ratingBucket
	if err := db.Model(&review.Review{}).
		Select("rating, COUNT(*) AS n").
		Where("reviewee_id = ?", revieweeID).
		Group("rating").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int, len(rows))
	for _, row := range rows {
		out[row.Rating] = row.N
	}
	return out, nil
}

// gormReviewTx is the transaction-bound review repository
type gormReviewTx struct {
	db *gorm.DB
}

func (t *gormReviewTx) Create(ctx context.Context, rv *review.Review) error {
	if err := t.db.WithContext(ctx).Create(rv).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (t *gormReviewTx) Update(ctx context.Context, rv *review.Review) error {
	result := t.db.WithContext(ctx).Model(&review.Review{}).
		Where("id = ? AND version = ?", rv.ID, rv.Version-1).
		Updates(map[string]any{
			"rating":     rv.Rating,
			"comment":    rv.Comment,
			"version":    rv.Version,
			"updated_at": rv.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (t *gormReviewTx) Delete(ctx context.Context, id uuid.UUID) error {
	result := t.db.WithContext(ctx).Delete(&review.Review{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *gormReviewTx) Histogram(ctx context.Context, revieweeID uuid.UUID) (map[int]int, error) {
	return histogram(t.db.WithContext(ctx), revieweeID)
}

func (t *gormReviewTx) UpdateUserRating(ctx context.Context, userID uuid.UUID, average decimal.Decimal, count int) error {
	return updateUserRating(t.db.WithContext(ctx), userID, average, count)
}

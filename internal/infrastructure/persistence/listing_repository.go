package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// MaxSearchPageSize caps listing search pages
const MaxSearchPageSize = 100

// GormListingRepository implements listing.ListingRepository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

func photosByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID loads a listing with its photos
func (r *GormListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	var l listing.Listing
	if err := r.db.WithContext(ctx).
		Preload("Photos", photosByPosition).
		First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// FindByIDs loads several listings with photos; missing ids are skipped
func (r *GormListingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*listing.Listing, error) {
	if len(ids) == 0 {
		return []*listing.Listing{}, nil
	}
	var out []*listing.Listing
	if err := r.db.WithContext(ctx).
		Preload("Photos", photosByPosition).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Search returns one page of listings matching the filter and the total count
func (r *GormListingRepository) Search(ctx context.Context, f listing.SearchFilter) ([]*listing.Listing, int64, error) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > MaxSearchPageSize {
		size = MaxSearchPageSize
	}

	query := r.applySearch(r.db.WithContext(ctx).Model(&listing.Listing{}), f)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []*listing.Listing{}, 0, nil
	}

	var out []*listing.Listing
	if err := query.
		Preload("Photos", photosByPosition).
		Order(listingOrder(f.Sort)).
		Offset((page - 1) * size).
		Limit(size).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *GormListingRepository) applySearch(query *gorm.DB, f listing.SearchFilter) *gorm.DB {
	if q := strings.TrimSpace(f.Query); q != "" {
		p := likePattern(q)
		query = query.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, p, p)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(city))
	}
	if f.Condition != "" {
		query = query.Where("condition = ?", f.Condition)
	}
	if f.MinPrice != nil {
		query = query.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		query = query.Where("price <= ?", *f.MaxPrice)
	}
	if f.SellerID != nil {
		query = query.Where("seller_id = ?", *f.SellerID)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	return query
}

// Create inserts the listing and its photos
func (r *GormListingRepository) Create(ctx context.Context, l *listing.Listing) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// Update writes the listing columns using the version as an optimistic lock.
// Photos are managed through SavePhoto, DeletePhoto and ReorderPhotos.
func (r *GormListingRepository) Update(ctx context.Context, l *listing.Listing) error {
	result := r.db.WithContext(ctx).
		Model(&listing.Listing{}).
		Where("id = ? AND version = ?", l.ID, l.Version-1).
		Updates(map[string]any{
			"title":            l.Title,
			"description":      l.Description,
			"price":            l.Price,
			"currency":         l.Currency,
			"category":         l.Category,
			"city":             l.City,
			"condition":        l.Condition,
			"status":           l.Status,
			"rejection_reason": l.RejectionReason,
			"published_at":     l.PublishedAt,
			"version":          l.Version,
			"updated_at":       l.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missingOrStale(ctx, l.ID)
	}
	return nil
}

// AddViewCounts adds flushed view counts. Listings deleted in between are
// skipped.
func (r *GormListingRepository) AddViewCounts(ctx context.Context, counts map[uuid.UUID]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, n := range counts {
			if n <= 0 {
				continue
			}
			if err := tx.Model(&listing.Listing{}).
				Where("id = ?", id).
				UpdateColumn("view_count", gorm.Expr("view_count + ?", n)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormListingRepository) missingOrStale(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&listing.Listing{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

// Delete removes a listing with its photos and favourites. Threads keep
// their history.
func (r *GormListingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).Delete(&listing.Photo{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM favorites WHERE listing_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&listing.Listing{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// SavePhoto inserts a photo record
func (r *GormListingRepository) SavePhoto(ctx context.Context, photo *listing.Photo) error {
	if err := r.db.WithContext(ctx).Create(photo).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("PHOTO_ALREADY_ATTACHED", "Photo is already attached to this listing")
		}
		return err
	}
	return nil
}

// DeletePhoto removes a photo record
func (r *GormListingRepository) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&listing.Photo{}, "id = ?", photoID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReorderPhotos persists the positions of the given photos
func (r *GormListingRepository) ReorderPhotos(ctx context.Context, listingID uuid.UUID, photos []listing.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range photos {
			if err := tx.Model(&listing.Photo{}).
				Where("id = ? AND listing_id = ?", p.ID, listingID).
				Update("position", p.Position).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

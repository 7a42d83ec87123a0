package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/favorite"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFavoriteRepository implements favorite.FavoriteRepository using GORM.
// Adding and removing keep listings.favorite_count in step within the same
// transaction.
type GormFavoriteRepository struct {
	db *gorm.DB
}

// NewGormFavoriteRepository creates a new GormFavoriteRepository
func NewGormFavoriteRepository(db *gorm.DB) *GormFavoriteRepository {
	return &GormFavoriteRepository{db: db}
}

// Add inserts the favourite if absent
func (r *GormFavoriteRepository) Add(ctx context.Context, fav *favorite.Favorite) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "listing_id"}},
			DoNothing: true,
		}).Create(fav)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Model(&listing.Listing{}).
			Where("id = ?", fav.ListingID).
			UpdateColumn("favorite_count", gorm.Expr("favorite_count + 1")).Error
	})
	return created, err
}

// Remove deletes the favourite if present
func (r *GormFavoriteRepository) Remove(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND listing_id = ?", userID, listingID).Delete(&favorite.Favorite{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&listing.Listing{}).
			Where("id = ? AND favorite_count > 0", listingID).
			UpdateColumn("favorite_count", gorm.Expr("favorite_count - 1")).Error
	})
	return removed, err
}

// Exists reports whether the user saved the listing
func (r *GormFavoriteRepository) Exists(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&favorite.Favorite{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUser returns one page of the user's favourites, newest first by default
func (r *GormFavoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]*favorite.Favorite, int64, error) {
	filter = filter.Normalize(100)
	query := r.db.WithContext(ctx).Model(&favorite.Favorite{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var favs []*favorite.Favorite
	if err := query.
		Order(orderClause(filter.OrderBy, filter.OrderDir, FavoriteSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&favs).Error; err != nil {
		return nil, 0, err
	}
	return favs, total, nil
}

// ListingIDsByUser returns every listing id the user saved
func (r *GormFavoriteRepository) ListingIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	if err := r.db.WithContext(ctx).Model(&favorite.Favorite{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("listing_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FilterFavorited returns the subset of listingIDs the user saved
func (r *GormFavoriteRepository) FilterFavorited(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(listingIDs))
	if len(listingIDs) == 0 {
		return out, nil
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&favorite.Favorite{}).
		Where("user_id = ? AND listing_id IN ?", userID, listingIDs).
		Pluck("listing_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

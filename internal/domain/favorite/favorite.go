// Package favorite models the listings a user has saved.
package favorite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
)

// Favorite links a user to a saved listing. (UserID, ListingID) is unique.
type Favorite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_listing"`
	ListingID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorites_user_listing;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Favorite) TableName() string {
	return "favorites"
}

// NewFavorite creates a favourite
func NewFavorite(userID, listingID uuid.UUID) (*Favorite, error) {
	if userID == uuid.Nil || listingID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_FAVORITE", "User and listing are required")
	}
	return &Favorite{
		ID:        uuid.New(),
		UserID:    userID,
		ListingID: listingID,
		CreatedAt: time.Now(),
	}, nil
}

// Event types
const (
	AggregateTypeFavorite    = "Favorite"
	EventTypeFavoriteAdded   = "favorite.added"
	EventTypeFavoriteRemoved = "favorite.removed"
)

// FavoriteChangedEvent is published when a favourite is added or removed
type FavoriteChangedEvent struct {
	shared.BaseDomainEvent
	UserID    uuid.UUID `json:"user_id"`
	ListingID uuid.UUID `json:"listing_id"`
}

// NewFavoriteChangedEvent creates an added/removed event
func NewFavoriteChangedEvent(eventType string, userID, listingID uuid.UUID) *FavoriteChangedEvent {
	return &FavoriteChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeFavorite, listingID),
		UserID:          userID,
		ListingID:       listingID,
	}
}

// FavoriteRepository defines the interface for favourite persistence
type FavoriteRepository interface {
	// Add inserts the favourite; created is false when it already existed
	Add(ctx context.Context, fav *Favorite) (created bool, err error)
	// Remove deletes the favourite; removed is false when there was none
	Remove(ctx context.Context, userID, listingID uuid.UUID) (removed bool, err error)
	Exists(ctx context.Context, userID, listingID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]*Favorite, int64, error)
	ListingIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// FilterFavorited returns the subset of listingIDs the user has saved
	FilterFavorited(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

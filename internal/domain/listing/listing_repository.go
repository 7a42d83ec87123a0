package listing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SortOrder selects the search result ordering
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// SearchFilter holds listing search criteria
type SearchFilter struct {
	Query     string
	Category  Category
	City      string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Condition Condition
	SellerID  *uuid.UUID
	Statuses  []Status
	Sort      SortOrder
	Page      int
	PageSize  int
}

// ListingRepository defines the interface for listing persistence
type ListingRepository interface {
	// FindByID loads a listing with its photos
	FindByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Listing, error)
	Search(ctx context.Context, filter SearchFilter) ([]*Listing, int64, error)
	// Create inserts the listing and its photos
	Create(ctx context.Context, listing *Listing) error
	// Update writes listing fields, failing with ErrConcurrencyConflict when
	// another writer bumped the version first
	Update(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, id uuid.UUID) error

	SavePhoto(ctx context.Context, photo *Photo) error
	DeletePhoto(ctx context.Context, photoID uuid.UUID) error
	ReorderPhotos(ctx context.Context, listingID uuid.UUID, photos []Photo) error
}

// ViewCounter counts listing detail views not yet written to the listings
// table. The persisted total is Listing.ViewCount plus the pending count.
type ViewCounter interface {
	// Increment adds one view and returns the pending count
	Increment(ctx context.Context, listingID uuid.UUID) (int64, error)
	Get(ctx context.Context, listingID uuid.UUID) (int64, error)
}

// ViewBuffer is a ViewCounter whose pending counts are periodically moved to
// the database
type ViewBuffer interface {
	ViewCounter
	// Drain returns and clears every pending count atomically
	Drain(ctx context.Context) (map[uuid.UUID]int64, error)
	// Restore adds counts back, after a failed flush
	Restore(ctx context.Context, counts map[uuid.UUID]int64) error
}

// ViewCountWriter persists drained view counts
type ViewCountWriter interface {
	AddViewCounts(ctx context.Context, counts map[uuid.UUID]int64) error
}

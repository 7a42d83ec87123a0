package favorite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	listingapp "github.com/openground/backend/internal/application/listing"
	"github.com/openground/backend/internal/domain/favorite"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
)

// ListingSummarizer renders listing summaries for a viewer
type ListingSummarizer interface {
	Summaries(ctx context.Context, viewerID uuid.UUID, ids []uuid.UUID) ([]listingapp.ListingSummary, error)
}

// FavoriteResponse is a saved listing
type FavoriteResponse struct {
	ListingID uuid.UUID                  `json:"listing_id"`
	SavedAt   time.Time                  `json:"saved_at"`
	Listing   *listingapp.ListingSummary `json:"listing,omitempty"`
}

// ToggleResponse reports the favourite state after a PUT or DELETE
type ToggleResponse struct {
	ListingID  uuid.UUID `json:"listing_id"`
	IsFavorite bool      `json:"is_favorite"`
	Changed    bool      `json:"changed"`
}

// FavoriteService manages saved listings. Adding and removing are idempotent.
type FavoriteService struct {
	favorites favorite.FavoriteRepository
	listings  listing.ListingRepository
	summaries ListingSummarizer
	events    shared.EventPublisher
	logger    *zap.Logger
}

// NewFavoriteService creates a new FavoriteService
func NewFavoriteService(
	favorites favorite.FavoriteRepository,
	listings listing.ListingRepository,
	summaries ListingSummarizer,
	events shared.EventPublisher,
	logger *zap.Logger,
) *FavoriteService {
	return &FavoriteService{
		favorites: favorites,
		listings:  listings,
		summaries: summaries,
		events:    events,
		logger:    logger,
	}
}

// Add saves a listing. Saving it twice is a no-op.
func (s *FavoriteService) Add(ctx context.Context, userID, listingID uuid.UUID) (*ToggleResponse, error) {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.IsOwnedBy(userID) {
		return nil, shared.NewDomainError("OWN_LISTING", "You cannot save your own listing")
	}
	if !l.IsPublic() {
		// a saved listing stays saved after it leaves the market
		exists, err := s.favorites.Exists(ctx, userID, listingID)
		if err != nil {
			return nil, err
		}
		if exists {
			return &ToggleResponse{ListingID: listingID, IsFavorite: true}, nil
		}
		return nil, shared.NewDomainError("LISTING_UNAVAILABLE", "This listing is not available")
	}

	fav, err := favorite.NewFavorite(userID, listingID)
	if err != nil {
		return nil, err
	}
	created, err := s.favorites.Add(ctx, fav)
	if err != nil {
		return nil, err
	}
	if created {
		s.publish(ctx, favorite.NewFavoriteChangedEvent(favorite.EventTypeFavoriteAdded, userID, listingID))
	}
	return &ToggleResponse{ListingID: listingID, IsFavorite: true, Changed: created}, nil
}

// Remove unsaves a listing. Removing an absent favourite is a no-op.
func (s *FavoriteService) Remove(ctx context.Context, userID, listingID uuid.UUID) (*ToggleResponse, error) {
	removed, err := s.favorites.Remove(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.publish(ctx, favorite.NewFavoriteChangedEvent(favorite.EventTypeFavoriteRemoved, userID, listingID))
	}
	return &ToggleResponse{ListingID: listingID, IsFavorite: false, Changed: removed}, nil
}

// List returns one page of saved listings, newest first
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (shared.Paginated[FavoriteResponse], error) {
	filter := shared.DefaultFilter()
	filter.Page, filter.PageSize = page, pageSize
	filter = filter.Normalize(100)

	favs, total, err := s.favorites.ListByUser(ctx, userID, filter)
	if err != nil {
		return shared.Paginated[FavoriteResponse]{}, err
	}

	ids := make([]uuid.UUID, 0, len(favs))
	for _, f := range favs {
		ids = append(ids, f.ListingID)
	}
	sums, err := s.summaries.Summaries(ctx, userID, ids)
	if err != nil {
		return shared.Paginated[FavoriteResponse]{}, err
	}
	byID := make(map[uuid.UUID]listingapp.ListingSummary, len(sums))
	for _, sum := range sums {
		byID[sum.ID] = sum
	}

	out := make([]FavoriteResponse, 0, len(favs))
	for _, f := range favs {
		item := FavoriteResponse{ListingID: f.ListingID, SavedAt: f.CreatedAt}
		if sum, ok := byID[f.ListingID]; ok {
			sum.IsFavorite = true
			item.Listing = &sum
		}
		out = append(out, item)
	}
	return shared.NewPaginated(out, total, filter.Page, filter.PageSize), nil
}

// IDs returns every listing id the user has saved
func (s *FavoriteService) IDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.favorites.ListingIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func (s *FavoriteService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish favourite event", zap.Error(err))
	}
}

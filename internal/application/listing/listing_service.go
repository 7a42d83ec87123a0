package listing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
	"github.com/openground/backend/internal/infrastructure/telemetry"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errNotOwner = shared.NewDomainError("FORBIDDEN", "Only the seller can change this listing")

// ListingService handles listing lifecycle, search and moderation
type ListingService struct {
	listings  listing.ListingRepository
	users     identity.UserRepository
	favorites FavoriteLookup
	views     listing.ViewCounter
	signer    photoSigner
	events    shared.EventPublisher
	logger    *zap.Logger
	config    Config
}

// NewListingService creates a new ListingService
func NewListingService(
	listings listing.ListingRepository,
	users identity.UserRepository,
	favorites FavoriteLookup,
	views listing.ViewCounter,
	storage ObjectStorage,
	events shared.EventPublisher,
	logger *zap.Logger,
	cfg Config,
) *ListingService {
	cfg = cfg.withDefaults()
	return &ListingService{
		listings:  listings,
		users:     users,
		favorites: favorites,
		views:     views,
		signer:    photoSigner{storage: storage, expiry: cfg.DownloadURLExpiry, logger: logger},
		events:    events,
		logger:    logger,
		config:    cfg,
	}
}

// Categories returns the fixed category catalogue
func (s *ListingService) Categories() []CategoryResponse {
	out := make([]CategoryResponse, 0, len(listing.Categories()))
	for _, c := range listing.Categories() {
		out = append(out, CategoryResponse{Slug: string(c), Name: categoryNames[c]})
	}
	return out
}

// Search returns active listings matching the request. Sellers looking at
// their own listings, and admins, may filter by any status.
func (s *ListingService) Search(ctx context.Context, viewerID uuid.UUID, isAdmin bool, req SearchListingsRequest) (shared.Paginated[ListingSummary], error) {
	filter, err := s.buildFilter(viewerID, isAdmin, req)
	if err != nil {
		return shared.Paginated[ListingSummary]{}, err
	}
	return s.search(ctx, viewerID, filter)
}

// ListBySeller returns a seller's listings. The seller sees every status.
func (s *ListingService) ListBySeller(ctx context.Context, viewerID uuid.UUID, isAdmin bool, sellerID uuid.UUID, req SearchListingsRequest) (shared.Paginated[ListingSummary], error) {
	req.SellerID = sellerID.String()
	return s.Search(ctx, viewerID, isAdmin, req)
}

// ListPending returns the moderation queue
func (s *ListingService) ListPending(ctx context.Context, page, pageSize int) (shared.Paginated[ListingSummary], error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.search(ctx, uuid.Nil, listing.SearchFilter{
		Statuses: []listing.Status{listing.StatusPending},
		Sort:     listing.SortNewest,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *ListingService) search(ctx context.Context, viewerID uuid.UUID, filter listing.SearchFilter) (shared.Paginated[ListingSummary], error) {
	items, total, err := s.listings.Search(ctx, filter)
	if err != nil {
		return shared.Paginated[ListingSummary]{}, err
	}

	saved := s.favorited(ctx, viewerID, items)
	out := make([]ListingSummary, 0, len(items))
	for _, l := range items {
		sum := toSummary(l)
		sum.CoverPhotoURL = s.signer.cover(ctx, l)
		sum.IsFavorite = saved[l.ID]
		out = append(out, sum)
	}
	return shared.NewPaginated(out, total, filter.Page, filter.PageSize), nil
}

// Summaries returns summaries for the given ids in the same order. Missing
// listings are skipped.
func (s *ListingService) Summaries(ctx context.Context, viewerID uuid.UUID, ids []uuid.UUID) ([]ListingSummary, error) {
	if len(ids) == 0 {
		return []ListingSummary{}, nil
	}
	items, err := s.listings.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*listing.Listing, len(items))
	for _, l := range items {
		byID[l.ID] = l
	}

	saved := s.favorited(ctx, viewerID, items)
	out := make([]ListingSummary, 0, len(items))
	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			continue
		}
		sum := toSummary(l)
		sum.CoverPhotoURL = s.signer.cover(ctx, l)
		sum.IsFavorite = saved[l.ID]
		out = append(out, sum)
	}
	return out, nil
}

func (s *ListingService) buildFilter(viewerID uuid.UUID, isAdmin bool, req SearchListingsRequest) (listing.SearchFilter, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	f := listing.SearchFilter{
		Query:     strings.TrimSpace(req.Query),
		City:      strings.TrimSpace(req.City),
		Condition: listing.Condition(req.Condition),
		Sort:      listing.SortOrder(req.Sort),
		Page:      page,
		PageSize:  pageSize,
		Statuses:  []listing.Status{listing.StatusActive},
	}
	if f.Sort == "" {
		f.Sort = listing.SortNewest
	}
	if req.Category != "" {
		f.Category = listing.Category(req.Category)
		if !f.Category.IsValid() {
			return f, shared.NewDomainError("INVALID_CATEGORY", "Unknown category")
		}
	}

	var err error
	if f.MinPrice, err = parsePrice(req.MinPrice); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parsePrice(req.MaxPrice); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, shared.NewDomainError("INVALID_PRICE_RANGE", "min_price cannot exceed max_price")
	}

	if req.SellerID != "" {
		sellerID, err := uuid.Parse(req.SellerID)
		if err != nil {
			return f, shared.NewDomainError("INVALID_SELLER", "seller_id must be a UUID")
		}
		f.SellerID = &sellerID
		if isAdmin || (viewerID != uuid.Nil && sellerID == viewerID) {
			f.Statuses = nil
		}
	}
	if req.Status != "" {
		status := listing.Status(req.Status)
		if f.Statuses == nil || status == listing.StatusActive {
			f.Statuses = []listing.Status{status}
		} else {
			return f, shared.NewDomainError("FORBIDDEN", "Only the seller can filter by status")
		}
	}
	return f, nil
}

// Get returns a listing detail and counts the view. Listings that are not
// public are reported as missing to everyone but the seller and admins.
func (s *ListingService) Get(ctx context.Context, id, viewerID uuid.UUID, isAdmin bool) (*ListingResponse, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.VisibleTo(viewerID, isAdmin) {
		return nil, shared.ErrNotFound
	}

	resp := s.detail(ctx, l, viewerID)

	var pending int64
	if l.IsPublic() && !l.IsOwnedBy(viewerID) {
		pending, err = s.views.Increment(ctx, l.ID)
	} else {
		pending, err = s.views.Get(ctx, l.ID)
	}
	if err != nil {
		logger.Or(ctx, s.logger).Warn("View counter unavailable", zap.String("listing_id", l.ID.String()), zap.Error(err))
	}
	resp.ViewCount += pending

	if seller, err := s.users.FindByID(ctx, l.SellerID); err == nil {
		resp.Seller = ToSellerSummary(seller)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return resp, nil
}

// Create publishes a new listing, or queues it for review when moderation is on
func (s *ListingService) Create(ctx context.Context, sellerID uuid.UUID, req CreateListingRequest) (*ListingResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "listing", "create", "seller_id", sellerID, "category", req.Category)
	defer span.End()

	resp, err := s.create(ctx, sellerID, req)
	telemetry.RecordError(span, err)
	return resp, err
}

func (s *ListingService) create(ctx context.Context, sellerID uuid.UUID, req CreateListingRequest) (*ListingResponse, error) {
	seller, err := s.users.FindByID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !seller.CanLogin() {
		return nil, shared.NewDomainError("ACCOUNT_BANNED", "This account has been suspended")
	}

	l, err := listing.NewListing(sellerID, s.details(req), s.config.ModerationRequired && !seller.IsAdmin())
	if err != nil {
		return nil, err
	}
	if err := s.listings.Create(ctx, l); err != nil {
		return nil, err
	}
	s.publish(ctx, l)

	logger.Or(ctx, s.logger).Info("Listing created",
		zap.String("listing_id", l.ID.String()),
		zap.String("status", string(l.Status)),
	)
	resp := s.detail(ctx, l, sellerID)
	resp.Seller = ToSellerSummary(seller)
	return resp, nil
}

// Update replaces the listing content
func (s *ListingService) Update(ctx context.Context, id, userID uuid.UUID, req UpdateListingRequest) (*ListingResponse, error) {
	l, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := l.Update(s.details(req)); err != nil {
		return nil, err
	}
	return s.save(ctx, l, userID)
}

// Delete removes the listing and its photos. Admins may delete any listing.
func (s *ListingService) Delete(ctx context.Context, id, userID uuid.UUID, isAdmin bool) error {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !l.IsOwnedBy(userID) && !isAdmin {
		return errNotOwner
	}
	if err := s.listings.Delete(ctx, l.ID); err != nil {
		return err
	}
	for _, p := range l.Photos {
		if err := s.signer.storage.DeleteObject(ctx, p.StorageKey); err != nil {
			logger.Or(ctx, s.logger).Warn("Failed to delete photo object",
				zap.String("storage_key", p.StorageKey),
				zap.Error(err),
			)
		}
	}
	l.ClearDomainEvents()
	l.AddDomainEvent(listing.NewListingDeletedEvent(l))
	s.publish(ctx, l)

	logger.Or(ctx, s.logger).Info("Listing deleted",
		zap.String("listing_id", l.ID.String()),
		zap.String("by", userID.String()),
	)
	return nil
}

// MarkSold marks an active listing as sold
func (s *ListingService) MarkSold(ctx context.Context, id, userID uuid.UUID) (*ListingResponse, error) {
	return s.transition(ctx, id, userID, (*listing.Listing).MarkSold)
}

// Archive hides a listing from search
func (s *ListingService) Archive(ctx context.Context, id, userID uuid.UUID) (*ListingResponse, error) {
	return s.transition(ctx, id, userID, (*listing.Listing).Archive)
}

// Reactivate brings an archived listing back
func (s *ListingService) Reactivate(ctx context.Context, id, userID uuid.UUID) (*ListingResponse, error) {
	return s.transition(ctx, id, userID, func(l *listing.Listing) error {
		return l.Reactivate(s.config.ModerationRequired)
	})
}

// Approve publishes a pending listing
func (s *ListingService) Approve(ctx context.Context, id, adminID uuid.UUID) (*ListingResponse, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.Approve(); err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("Listing approved",
		zap.String("listing_id", l.ID.String()),
		zap.String("admin_id", adminID.String()),
	)
	return s.save(ctx, l, adminID)
}

// Reject refuses a pending listing with a reason shown to the seller
func (s *ListingService) Reject(ctx context.Context, id, adminID uuid.UUID, req RejectListingRequest) (*ListingResponse, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.Reject(req.Reason); err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("Listing rejected",
		zap.String("listing_id", l.ID.String()),
		zap.String("admin_id", adminID.String()),
	)
	return s.save(ctx, l, adminID)
}

func (s *ListingService) transition(ctx context.Context, id, userID uuid.UUID, apply func(*listing.Listing) error) (*ListingResponse, error) {
	l, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := apply(l); err != nil {
		return nil, err
	}
	return s.save(ctx, l, userID)
}

func (s *ListingService) owned(ctx context.Context, id, userID uuid.UUID) (*listing.Listing, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(userID) {
		return nil, errNotOwner
	}
	return l, nil
}

func (s *ListingService) save(ctx context.Context, l *listing.Listing, viewerID uuid.UUID) (*ListingResponse, error) {
	if err := s.listings.Update(ctx, l); err != nil {
		return nil, err
	}
	s.publish(ctx, l)
	return s.detail(ctx, l, viewerID), nil
}

func (s *ListingService) publish(ctx context.Context, l *listing.Listing) {
	if err := shared.PublishAndClear(ctx, s.events, l); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish listing events",
			zap.String("listing_id", l.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *ListingService) detail(ctx context.Context, l *listing.Listing, viewerID uuid.UUID) *ListingResponse {
	resp := toResponse(l)
	resp.Photos = s.signer.photos(ctx, l.Photos)
	resp.IsOwner = viewerID != uuid.Nil && l.IsOwnedBy(viewerID)
	resp.IsFavorite = s.favorited(ctx, viewerID, []*listing.Listing{l})[l.ID]
	return resp
}

// favorited returns the saved subset of items; failures degrade to "not saved"
func (s *ListingService) favorited(ctx context.Context, viewerID uuid.UUID, items []*listing.Listing) map[uuid.UUID]bool {
	if viewerID == uuid.Nil || s.favorites == nil || len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, l := range items {
		ids = append(ids, l.ID)
	}
	saved, err := s.favorites.FilterFavorited(ctx, viewerID, ids)
	if err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to load favourites", zap.Error(err))
		return nil
	}
	return saved
}

func (s *ListingService) details(req CreateListingRequest) listing.Details {
	currency := req.Currency
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	return listing.Details{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		Category:    listing.Category(req.Category),
		City:        req.City,
		Condition:   listing.Condition(req.Condition),
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price filter must be a non-negative number")
	}
	return &d, nil
}

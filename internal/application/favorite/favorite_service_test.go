package favorite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	listingapp "github.com/openground/backend/internal/application/listing"
	"github.com/openground/backend/internal/domain/favorite"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
)

// MockFavoriteRepository is a mock implementation of favorite.FavoriteRepository
type MockFavoriteRepository struct {
	mock.Mock
}

func (m *MockFavoriteRepository) Add(ctx context.Context, fav *favorite.Favorite) (bool, error) {
	args := m.Called(ctx, fav)
	return args.Bool(0), args.Error(1)
}

func (m *MockFavoriteRepository) Remove(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockFavoriteRepository) Exists(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockFavoriteRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]*favorite.Favorite, int64, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).([]*favorite.Favorite), args.Get(1).(int64), args.Error(2)
}

func (m *MockFavoriteRepository) ListingIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockFavoriteRepository) FilterFavorited(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx, userID, listingIDs)
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

// stubListings serves FindByID from a map; the other methods are unused here
type stubListings struct {
	listing.ListingRepository
	items map[uuid.UUID]*listing.Listing
}

func (s stubListings) FindByID(_ context.Context, id uuid.UUID) (*listing.Listing, error) {
	if l, ok := s.items[id]; ok {
		return l, nil
	}
	return nil, shared.ErrNotFound
}

type stubSummaries struct {
	calls [][]uuid.UUID
}

func (s *stubSummaries) Summaries(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]listingapp.ListingSummary, error) {
	s.calls = append(s.calls, ids)
	out := make([]listingapp.ListingSummary, 0, len(ids))
	for i, id := range ids {
		if i == len(ids)-1 && len(ids) > 1 {
			break // the last one was deleted meanwhile
		}
		out = append(out, listingapp.ListingSummary{ID: id, Title: "item"})
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func newListing(t *testing.T, sellerID uuid.UUID, moderated bool) *listing.Listing {
	t.Helper()
	l, err := listing.NewListing(sellerID, listing.Details{
		Title:    "Guitar amp",
		Price:    decimal.NewFromInt(90),
		Currency: "EUR",
		Category: listing.CategoryElectronics,
	}, moderated)
	require.NoError(t, err)
	return l
}

type favFixture struct {
	repo     *MockFavoriteRepository
	listings stubListings
	sums     *stubSummaries
	events   *recordingPublisher
	svc      *FavoriteService
}

func newFavFixture(items ...*listing.Listing) *favFixture {
	f := &favFixture{
		repo:     new(MockFavoriteRepository),
		listings: stubListings{items: make(map[uuid.UUID]*listing.Listing)},
		sums:     &stubSummaries{},
		events:   &recordingPublisher{},
	}
	for _, l := range items {
		f.listings.items[l.ID] = l
	}
	f.svc = NewFavoriteService(f.repo, f.listings, f.sums, f.events, zap.NewNop())
	return f
}

func codeOf(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func TestFavoriteService_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newListing(t, uuid.New(), false)
	f := newFavFixture(l)
	user := uuid.New()

	f.repo.On("Add", ctx, mock.AnythingOfType("*favorite.Favorite")).Return(true, nil).Once()
	f.repo.On("Add", ctx, mock.AnythingOfType("*favorite.Favorite")).Return(false, nil).Once()

	first, err := f.svc.Add(ctx, user, l.ID)
	require.NoError(t, err)
	assert.True(t, first.IsFavorite)
	assert.True(t, first.Changed)

	second, err := f.svc.Add(ctx, user, l.ID)
	require.NoError(t, err)
	assert.True(t, second.IsFavorite)
	assert.False(t, second.Changed)

	assert.Equal(t, []string{favorite.EventTypeFavoriteAdded}, f.events.types(), "only the first add is an event")
	f.repo.AssertExpectations(t)
}

func TestFavoriteService_AddRules(t *testing.T) {
	ctx := context.Background()
	seller := uuid.New()
	own := newListing(t, seller, false)
	pending := newListing(t, uuid.New(), true)
	f := newFavFixture(own, pending)
	user := uuid.New()

	_, err := f.svc.Add(ctx, seller, own.ID)
	assert.Equal(t, "OWN_LISTING", codeOf(err))

	_, err = f.svc.Add(ctx, user, uuid.New())
	assert.True(t, shared.IsNotFound(err))

	f.repo.On("Exists", ctx, user, pending.ID).Return(false, nil).Once()
	_, err = f.svc.Add(ctx, user, pending.ID)
	assert.Equal(t, "LISTING_UNAVAILABLE", codeOf(err))

	f.repo.On("Exists", ctx, user, pending.ID).Return(true, nil).Once()
	resp, err := f.svc.Add(ctx, user, pending.ID)
	require.NoError(t, err)
	assert.True(t, resp.IsFavorite)
	assert.False(t, resp.Changed)

	f.repo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestFavoriteService_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFavFixture()
	user, id := uuid.New(), uuid.New()
	f.repo.On("Remove", ctx, user, id).Return(true, nil).Once()
	f.repo.On("Remove", ctx, user, id).Return(false, nil).Once()

	resp, err := f.svc.Remove(ctx, user, id)
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	resp, err = f.svc.Remove(ctx, user, id)
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	assert.False(t, resp.IsFavorite)
	assert.Equal(t, []string{favorite.EventTypeFavoriteRemoved}, f.events.types())
}

func TestFavoriteService_List(t *testing.T) {
	ctx := context.Background()
	f := newFavFixture()
	user := uuid.New()
	a, _ := favorite.NewFavorite(user, uuid.New())
	b, _ := favorite.NewFavorite(user, uuid.New())

	f.repo.On("ListByUser", ctx, user, mock.MatchedBy(func(fl shared.Filter) bool {
		return fl.Page == 1 && fl.PageSize == 20
	})).Return([]*favorite.Favorite{a, b}, int64(2), nil)

	page, err := f.svc.List(ctx, user, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, a.ListingID, page.Items[0].ListingID)
	require.NotNil(t, page.Items[0].Listing)
	assert.True(t, page.Items[0].Listing.IsFavorite)
	assert.Nil(t, page.Items[1].Listing, "deleted listings keep their row without a summary")
	assert.Equal(t, [][]uuid.UUID{{a.ListingID, b.ListingID}}, f.sums.calls)
}

func TestFavoriteService_IDs(t *testing.T) {
	ctx := context.Background()
	f := newFavFixture()
	user := uuid.New()
	f.repo.On("ListingIDsByUser", ctx, user).Return(nil, nil)

	ids, err := f.svc.IDs(ctx, user)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

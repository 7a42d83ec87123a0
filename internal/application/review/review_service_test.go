package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/domain/shared"
)

func init() {
	identity.PasswordCost = bcrypt.MinCost
}

type rating struct {
	average decimal.Decimal
	count   int
}

// fakeReviews keeps reviews in memory. A transaction works on a copy that is
// only committed when fn succeeds.
type fakeReviews struct {
	mu      sync.Mutex
	items   map[uuid.UUID]review.Review
	ratings map[uuid.UUID]rating
	failTx  error
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{items: map[uuid.UUID]review.Review{}, ratings: map[uuid.UUID]rating{}}
}

func (f *fakeReviews) FindByID(_ context.Context, id uuid.UUID) (*review.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rv, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rv, nil
}

func (f *fakeReviews) Exists(_ context.Context, reviewerID, revieweeID uuid.UUID, listingID *uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rv := range f.items {
		if rv.ReviewerID != reviewerID || rv.RevieweeID != revieweeID {
			continue
		}
		if (rv.ListingID == nil && listingID == nil) ||
			(rv.ListingID != nil && listingID != nil && *rv.ListingID == *listingID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReviews) ListForUser(_ context.Context, revieweeID uuid.UUID, _ shared.Filter) ([]*review.Review, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*review.Review
	for _, rv := range f.items {
		if rv.RevieweeID == revieweeID {
			rv := rv
			out = append(out, &rv)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeReviews) Histogram(_ context.Context, revieweeID uuid.UUID) (map[int]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return histogram(f.items, revieweeID), nil
}

func histogram(items map[uuid.UUID]review.Review, revieweeID uuid.UUID) map[int]int {
	h := map[int]int{}
	for _, rv := range items {
		if rv.RevieweeID == revieweeID {
			h[rv.Rating]++
		}
	}
	return h
}

func (f *fakeReviews) WithinTx(ctx context.Context, fn func(tx review.TxRepository) error) error {
	f.mu.Lock()
	tx := &fakeTx{items: make(map[uuid.UUID]review.Review, len(f.items)), ratings: make(map[uuid.UUID]rating, len(f.ratings))}
	for k, v := range f.items {
		tx.items[k] = v
	}
	for k, v := range f.ratings {
		tx.ratings[k] = v
	}
	failTx := f.failTx
	f.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if failTx != nil {
		return failTx
	}
	f.mu.Lock()
	f.items, f.ratings = tx.items, tx.ratings
	f.mu.Unlock()
	return nil
}

type fakeTx struct {
	items   map[uuid.UUID]review.Review
	ratings map[uuid.UUID]rating
}

func (t *fakeTx) Create(_ context.Context, r *review.Review) error {
	t.items[r.ID] = *r
	return nil
}

func (t *fakeTx) Update(_ context.Context, r *review.Review) error {
	if _, ok := t.items[r.ID]; !ok {
		return shared.ErrNotFound
	}
	t.items[r.ID] = *r
	return nil
}

func (t *fakeTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.items, id)
	return nil
}

func (t *fakeTx) Histogram(_ context.Context, revieweeID uuid.UUID) (map[int]int, error) {
	return histogram(t.items, revieweeID), nil
}

func (t *fakeTx) UpdateUserRating(_ context.Context, userID uuid.UUID, average decimal.Decimal, count int) error {
	t.ratings[userID] = rating{average: average, count: count}
	return nil
}

type stubUsers struct {
	identity.UserRepository
	items map[uuid.UUID]*identity.User
}

func (s stubUsers) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	if u, ok := s.items[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s stubUsers) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*identity.User, error) {
	out := make([]*identity.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.items[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

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

func codeOf(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

type fixture struct {
	reviews  *fakeReviews
	users    stubUsers
	listings stubListings
	events   *recordingPublisher
	svc      *ReviewService
}

func newFixture() *fixture {
	f := &fixture{
		reviews:  newFakeReviews(),
		users:    stubUsers{items: map[uuid.UUID]*identity.User{}},
		listings: stubListings{items: map[uuid.UUID]*listing.Listing{}},
		events:   &recordingPublisher{},
	}
	f.svc = NewReviewService(f.reviews, f.users, f.listings, f.events, zap.NewNop())
	return f
}

func (f *fixture) addUser(t *testing.T, username string) *identity.User {
	t.Helper()
	u, err := identity.NewUser(username+"@example.com", username, "secret123", username)
	require.NoError(t, err)
	f.users.items[u.ID] = u
	return u
}

func (f *fixture) addListing(t *testing.T, sellerID uuid.UUID) *listing.Listing {
	t.Helper()
	l, err := listing.NewListing(sellerID, listing.Details{
		Title:    "Vintage lamp",
		Price:    decimal.NewFromInt(25),
		Currency: "EUR",
		Category: listing.CategoryHomeGarden,
	}, false)
	require.NoError(t, err)
	f.listings.items[l.ID] = l
	return l
}

func TestReviewService_CreateRecomputesRating(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	_, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 5, Comment: " great "})
	require.NoError(t, err)
	resp, err := f.svc.Create(ctx, bob.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Rating)

	got := f.reviews.ratings[seller.ID]
	assert.Equal(t, 2, got.count)
	assert.True(t, got.average.Equal(decimal.RequireFromString("4.5")), got.average.String())
	assert.Equal(t, []string{review.EventTypeReviewCreated, review.EventTypeReviewCreated}, f.events.types())
}

func TestReviewService_CreateRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	other := f.addUser(t, "other")
	alice := f.addUser(t, "alice")
	l := f.addListing(t, seller.ID)

	_, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: alice.ID.String(), Rating: 5})
	assert.Equal(t, "CANNOT_REVIEW_SELF", codeOf(err))

	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: uuid.NewString(), Rating: 5})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 0})
	assert.Equal(t, "INVALID_RATING", codeOf(err))

	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: other.ID.String(), ListingID: l.ID.String(), Rating: 3})
	assert.Equal(t, "INVALID_REVIEW", codeOf(err), "reviewee must be the listing's seller")

	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), ListingID: l.ID.String(), Rating: 3})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), ListingID: l.ID.String(), Rating: 1})
	assert.Equal(t, "ALREADY_EXISTS", codeOf(err))

	// a review without listing is a separate slot
	_, err = f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, f.reviews.ratings[seller.ID].count)
}

func TestReviewService_FailedTxLeavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	alice := f.addUser(t, "alice")
	f.reviews.failTx = errors.New("commit failed")

	_, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 5})
	require.Error(t, err)
	assert.Empty(t, f.reviews.items)
	assert.Empty(t, f.reviews.ratings)
	assert.Empty(t, f.events.types())
}

func TestReviewService_UpdateAuthorOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	alice := f.addUser(t, "alice")

	created, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 2})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, created.ID, seller.ID, UpdateReviewRequest{Rating: 5})
	assert.Equal(t, "FORBIDDEN", codeOf(err))

	updated, err := f.svc.Update(ctx, created.ID, alice.ID, UpdateReviewRequest{Rating: 5, Comment: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	assert.Equal(t, "changed my mind", updated.Comment)
	assert.True(t, f.reviews.ratings[seller.ID].average.Equal(decimal.NewFromInt(5)))

	_, err = f.svc.Update(ctx, uuid.New(), alice.ID, UpdateReviewRequest{Rating: 5})
	assert.True(t, shared.IsNotFound(err))
}

func TestReviewService_DeleteAuthorOrAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	a, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 1})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, bob.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 5})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, a.ID, bob.ID, false)
	assert.Equal(t, "FORBIDDEN", codeOf(err))

	require.NoError(t, f.svc.Delete(ctx, a.ID, alice.ID, false))
	got := f.reviews.ratings[seller.ID]
	assert.Equal(t, 1, got.count)
	assert.True(t, got.average.Equal(decimal.NewFromInt(5)))

	require.NoError(t, f.svc.Delete(ctx, b.ID, uuid.New(), true))
	got = f.reviews.ratings[seller.ID]
	assert.Equal(t, 0, got.count)
	assert.True(t, got.average.IsZero())

	types := f.events.types()
	assert.Equal(t, review.EventTypeReviewDeleted, types[len(types)-1])
}

func TestReviewService_ListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seller := f.addUser(t, "seller")
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	_, err := f.svc.Create(ctx, alice.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 5})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, bob.ID, CreateReviewRequest{RevieweeID: seller.ID.String(), Rating: 3})
	require.NoError(t, err)

	resp, err := f.svc.ListForUser(ctx, seller.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		require.NotNil(t, item.Reviewer)
		assert.Contains(t, []string{"alice", "bob"}, item.Reviewer.Username)
	}
	assert.Equal(t, 2, resp.Summary.Count)
	assert.True(t, resp.Summary.Average.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 1, resp.Summary.Histogram[5])
	assert.Equal(t, 0, resp.Summary.Histogram[4])

	_, err = f.svc.ListForUser(ctx, uuid.New(), 1, 20)
	assert.True(t, shared.IsNotFound(err))
}

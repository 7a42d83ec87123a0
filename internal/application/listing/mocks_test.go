package listing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
)

// MockListingRepository is a mock implementation of listing.ListingRepository
type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*listing.Listing), args.Error(1)
}

func (m *MockListingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*listing.Listing, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*listing.Listing), args.Error(1)
}

func (m *MockListingRepository) Search(ctx context.Context, filter listing.SearchFilter) ([]*listing.Listing, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*listing.Listing), args.Get(1).(int64), args.Error(2)
}

func (m *MockListingRepository) Create(ctx context.Context, l *listing.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockListingRepository) Update(ctx context.Context, l *listing.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockListingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockListingRepository) SavePhoto(ctx context.Context, photo *listing.Photo) error {
	return m.Called(ctx, photo).Error(0)
}

func (m *MockListingRepository) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	return m.Called(ctx, photoID).Error(0)
}

func (m *MockListingRepository) ReorderPhotos(ctx context.Context, listingID uuid.UUID, photos []listing.Photo) error {
	return m.Called(ctx, listingID, photos).Error(0)
}

// MockUserRepository is a mock implementation of identity.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*identity.User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateRating(ctx context.Context, id uuid.UUID, average decimal.Decimal, count int) error {
	return m.Called(ctx, id, average, count).Error(0)
}

// fakeStorage records objects by key and signs URLs without a network
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
	deleted []string
	failURL bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]bool)}
}

func (f *fakeStorage) GenerateUploadURL(_ context.Context, key, _ string, expiresIn time.Duration) (string, time.Time, error) {
	if f.failURL {
		return "", time.Time{}, fmt.Errorf("presign failed")
	}
	return "https://storage.test/put/" + key, time.Now().Add(expiresIn), nil
}

func (f *fakeStorage) GenerateDownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if f.failURL {
		return "", time.Time{}, fmt.Errorf("presign failed")
	}
	return "https://storage.test/get/" + key, time.Now().Add(expiresIn), nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}

func (f *fakeStorage) put(key string) {
	f.mu.Lock()
	f.objects[key] = true
	f.mu.Unlock()
}

type fakeViews struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

func (v *fakeViews) Increment(_ context.Context, id uuid.UUID) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[id]++
	return v.counts[id], nil
}

func (v *fakeViews) Get(_ context.Context, id uuid.UUID) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[id], nil
}

type fakeFavorites map[uuid.UUID]bool

func (f fakeFavorites) FilterFavorited(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if f[id] {
			out[id] = true
		}
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

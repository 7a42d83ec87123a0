package client

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FavoritesAPI is the part of the API the favourites store calls
type FavoritesAPI interface {
	FavoriteIDs(ctx context.Context) ([]uuid.UUID, error)
	SetFavorite(ctx context.Context, listingID uuid.UUID, saved bool) error
}

// FavoriteStore holds the caller's saved listing ids and applies toggles
// optimistically: the local set flips at once and is restored if the API
// call fails.
type FavoriteStore struct {
	api    FavoritesAPI
	logger *zap.Logger

	mu        sync.Mutex
	saved     map[uuid.UUID]struct{}
	locks     map[uuid.UUID]*keyLock
	observers []func(listingID uuid.UUID, saved bool)
}

type change struct {
	id    uuid.UUID
	saved bool
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewFavoriteStore creates an empty store. Call Sync to load the set.
func NewFavoriteStore(api FavoritesAPI, logger *zap.Logger) *FavoriteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FavoriteStore{
		api:    api,
		logger: logger,
		saved:  make(map[uuid.UUID]struct{}),
		locks:  make(map[uuid.UUID]*keyLock),
	}
}

// OnChange registers fn to be called on every change of a listing's state,
// including rollbacks
func (s *FavoriteStore) OnChange(fn func(listingID uuid.UUID, saved bool)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Sync replaces the local set with the server's. Listings with a toggle in
// flight keep their local state; the toggle settles them.
func (s *FavoriteStore) Sync(ctx context.Context) error {
	ids, err := s.api.FavoriteIDs(ctx)
	if err != nil {
		return err
	}
	next := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.mu.Lock()
	for id := range s.locks {
		if _, ok := s.saved[id]; ok {
			next[id] = struct{}{}
		} else {
			delete(next, id)
		}
	}
	var changed []change
	for id := range s.saved {
		if _, ok := next[id]; !ok {
			changed = append(changed, change{id: id, saved: false})
		}
	}
	for id := range next {
		if _, ok := s.saved[id]; !ok {
			changed = append(changed, change{id: id, saved: true})
		}
	}
	s.saved = next
	s.mu.Unlock()

	for _, c := range changed {
		s.notify(c.id, c.saved)
	}
	return nil
}

// IsSaved reports whether a listing is in the set
func (s *FavoriteStore) IsSaved(listingID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[listingID]
	return ok
}

// IDs returns the saved ids in a stable order
func (s *FavoriteStore) IDs() []uuid.UUID {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.saved))
	for id := range s.saved {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// Toggle flips a listing and returns its resulting state. On API failure
// the previous state is restored and returned with the error. Toggles of
// the same listing run one after another.
func (s *FavoriteStore) Toggle(ctx context.Context, listingID uuid.UUID) (bool, error) {
	unlock := s.lock(listingID)
	defer unlock()

	prev := s.IsSaved(listingID)
	return s.apply(ctx, listingID, prev, !prev)
}

// Set saves or unsaves a listing with the same rollback rules as Toggle
func (s *FavoriteStore) Set(ctx context.Context, listingID uuid.UUID, saved bool) error {
	unlock := s.lock(listingID)
	defer unlock()

	prev := s.IsSaved(listingID)
	if prev == saved {
		return nil
	}
	_, err := s.apply(ctx, listingID, prev, saved)
	return err
}

func (s *FavoriteStore) apply(ctx context.Context, listingID uuid.UUID, prev, next bool) (bool, error) {
	s.put(listingID, next)
	s.notify(listingID, next)

	if err := s.api.SetFavorite(ctx, listingID, next); err != nil {
		s.logger.Debug("Favourite toggle rolled back",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		s.put(listingID, prev)
		s.notify(listingID, prev)
		return prev, err
	}
	return next, nil
}

func (s *FavoriteStore) put(listingID uuid.UUID, saved bool) {
	s.mu.Lock()
	if saved {
		s.saved[listingID] = struct{}{}
	} else {
		delete(s.saved, listingID)
	}
	s.mu.Unlock()
}

func (s *FavoriteStore) notify(listingID uuid.UUID, saved bool) {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(listingID, saved)
	}
}

// lock serialises work on one listing id
func (s *FavoriteStore) lock(listingID uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[listingID]
	if !ok {
		l = &keyLock{}
		s.locks[listingID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, listingID)
		}
		s.mu.Unlock()
	}
}

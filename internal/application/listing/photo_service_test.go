package listing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openground/backend/internal/domain/listing"
)

func TestPhotoService_RequestUploadURL(t *testing.T) {
	ctx := context.Background()
	f := newListingFixture(Config{MaxPhotos: 1})
	seller := uuid.New()
	l := newActiveListing(t, seller)
	f.listings.On("FindByID", ctx, l.ID).Return(l, nil)

	_, err := f.photos.RequestUploadURL(ctx, l.ID, uuid.New(), UploadURLRequest{ContentType: "image/png"})
	assert.Equal(t, "FORBIDDEN", codeOf(err))

	_, err = f.photos.RequestUploadURL(ctx, l.ID, seller, UploadURLRequest{ContentType: "image/svg+xml"})
	assert.Equal(t, "INVALID_CONTENT_TYPE", codeOf(err))

	resp, err := f.photos.RequestUploadURL(ctx, l.ID, seller, UploadURLRequest{ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", resp.Method)
	assert.True(t, strings.HasPrefix(resp.StorageKey, listing.PhotoKeyPrefix(l.ID)))
	assert.True(t, strings.HasSuffix(resp.StorageKey, ".jpg"))
	assert.Contains(t, resp.UploadURL, resp.StorageKey)
	assert.False(t, resp.ExpiresAt.IsZero())

	_, err = l.AddPhoto(resp.StorageKey, "image/jpeg", 1)
	require.NoError(t, err)
	_, err = f.photos.RequestUploadURL(ctx, l.ID, seller, UploadURLRequest{ContentType: "image/jpeg"})
	assert.Equal(t, "PHOTO_LIMIT_REACHED", codeOf(err))
}

func TestPhotoService_RequestUploadURLStorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newListingFixture(Config{})
	f.storage.failURL = true
	seller := uuid.New()
	l := newActiveListing(t, seller)
	f.listings.On("FindByID", ctx, l.ID).Return(l, nil)

	_, err := f.photos.RequestUploadURL(ctx, l.ID, seller, UploadURLRequest{ContentType: "image/png"})
	assert.Equal(t, "STORAGE_ERROR", codeOf(err))
}

func TestPhotoService_AttachPhoto(t *testing.T) {
	ctx := context.Background()
	f := newListingFixture(Config{})
	seller := uuid.New()
	l := newActiveListing(t, seller)
	f.listings.On("FindByID", ctx, l.ID).Return(l, nil)
	f.listings.On("SavePhoto", ctx, mock.AnythingOfType("*listing.Photo")).Return(nil)

	key := listing.NewPhotoKey(l.ID, "image/webp")

	_, err := f.photos.AttachPhoto(ctx, l.ID, seller, AttachPhotoRequest{StorageKey: key, ContentType: "image/webp"})
	assert.Equal(t, "PHOTO_NOT_UPLOADED", codeOf(err))

	f.storage.put(key)
	photo, err := f.photos.AttachPhoto(ctx, l.ID, seller, AttachPhotoRequest{StorageKey: key, ContentType: "image/webp"})
	require.NoError(t, err)
	assert.Equal(t, 0, photo.Position)
	assert.Equal(t, "https://storage.test/get/"+key, photo.URL)
	require.Len(t, l.Photos, 1)

	_, err = f.photos.AttachPhoto(ctx, l.ID, seller, AttachPhotoRequest{StorageKey: key, ContentType: "image/webp"})
	assert.Equal(t, "PHOTO_ALREADY_ATTACHED", codeOf(err))

	foreign := listing.NewPhotoKey(uuid.New(), "image/webp")
	f.storage.put(foreign)
	_, err = f.photos.AttachPhoto(ctx, l.ID, seller, AttachPhotoRequest{StorageKey: foreign, ContentType: "image/webp"})
	assert.Equal(t, "INVALID_STORAGE_KEY", codeOf(err))
}

func TestPhotoService_RemovePhoto(t *testing.T) {
	ctx := context.Background()
	f := newListingFixture(Config{})
	seller := uuid.New()
	l := newActiveListing(t, seller)

	first, err := l.AddPhoto(listing.NewPhotoKey(l.ID, "image/png"), "image/png", 10)
	require.NoError(t, err)
	second, err := l.AddPhoto(listing.NewPhotoKey(l.ID, "image/png"), "image/png", 10)
	require.NoError(t, err)

	f.listings.On("FindByID", ctx, l.ID).Return(l, nil)
	f.listings.On("DeletePhoto", ctx, first.ID).Return(nil)
	f.listings.On("ReorderPhotos", ctx, l.ID, mock.MatchedBy(func(ps []listing.Photo) bool {
		return len(ps) == 1 && ps[0].ID == second.ID && ps[0].Position == 0
	})).Return(nil)

	require.NoError(t, f.photos.RemovePhoto(ctx, l.ID, seller, first.ID))
	assert.Equal(t, []string{first.StorageKey}, f.storage.deleted)

	err = f.photos.RemovePhoto(ctx, l.ID, seller, uuid.New())
	assert.Equal(t, "NOT_FOUND", codeOf(err))
	f.listings.AssertExpectations(t)
}

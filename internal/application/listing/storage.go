package listing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/listing"
)

// ObjectStorage is the photo store. Implemented by S3-compatible storage and
// by an in-memory store for development.
type ObjectStorage interface {
	// GenerateUploadURL returns a presigned PUT URL and its expiry
	GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error)
	// GenerateDownloadURL returns a presigned GET URL and its expiry
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
	DeleteObject(ctx context.Context, storageKey string) error
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}

// FavoriteLookup reports which listings a user has saved
type FavoriteLookup interface {
	FilterFavorited(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Config holds the marketplace rules applied by the listing services
type Config struct {
	ModerationRequired bool
	MaxPhotos          int
	DefaultCurrency    string
	UploadURLExpiry    time.Duration
	DownloadURLExpiry  time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxPhotos:         10,
		DefaultCurrency:   "EUR",
		UploadURLExpiry:   15 * time.Minute,
		DownloadURLExpiry: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPhotos <= 0 {
		c.MaxPhotos = d.MaxPhotos
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = d.DefaultCurrency
	}
	if c.UploadURLExpiry <= 0 {
		c.UploadURLExpiry = d.UploadURLExpiry
	}
	if c.DownloadURLExpiry <= 0 {
		c.DownloadURLExpiry = d.DownloadURLExpiry
	}
	return c
}

// photoSigner turns stored photos into download URLs
type photoSigner struct {
	storage ObjectStorage
	expiry  time.Duration
	logger  *zap.Logger
}

// sign returns the download URL of a photo, or "" when presigning fails
func (p photoSigner) sign(ctx context.Context, photo listing.Photo) string {
	url, _, err := p.storage.GenerateDownloadURL(ctx, photo.StorageKey, p.expiry)
	if err != nil {
		p.logger.Warn("Failed to presign photo",
			zap.String("storage_key", photo.StorageKey),
			zap.Error(err),
		)
		return ""
	}
	return url
}

func (p photoSigner) photo(ctx context.Context, photo listing.Photo) PhotoResponse {
	return PhotoResponse{
		ID:          photo.ID,
		URL:         p.sign(ctx, photo),
		ContentType: photo.ContentType,
		Position:    photo.Position,
	}
}

func (p photoSigner) photos(ctx context.Context, photos []listing.Photo) []PhotoResponse {
	out := make([]PhotoResponse, 0, len(photos))
	for _, ph := range photos {
		out = append(out, p.photo(ctx, ph))
	}
	return out
}

func (p photoSigner) cover(ctx context.Context, l *listing.Listing) string {
	if len(l.Photos) == 0 {
		return ""
	}
	return p.sign(ctx, l.Photos[0])
}

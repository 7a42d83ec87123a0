package listing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
)

// PhotoService manages listing photos. Clients upload directly to object
// storage with a presigned URL, then attach the uploaded key.
type PhotoService struct {
	listings listing.ListingRepository
	storage  ObjectStorage
	signer   photoSigner
	logger   *zap.Logger
	config   Config
}

// NewPhotoService creates a new PhotoService
func NewPhotoService(listings listing.ListingRepository, storage ObjectStorage, logger *zap.Logger, cfg Config) *PhotoService {
	cfg = cfg.withDefaults()
	return &PhotoService{
		listings: listings,
		storage:  storage,
		signer:   photoSigner{storage: storage, expiry: cfg.DownloadURLExpiry, logger: logger},
		logger:   logger,
		config:   cfg,
	}
}

// RequestUploadURL reserves a storage key for a new photo and presigns an upload
func (s *PhotoService) RequestUploadURL(ctx context.Context, listingID, userID uuid.UUID, req UploadURLRequest) (*UploadURLResponse, error) {
	l, err := s.owned(ctx, listingID, userID)
	if err != nil {
		return nil, err
	}
	if err := listing.ValidatePhotoContentType(req.ContentType); err != nil {
		return nil, err
	}
	if len(l.Photos) >= s.config.MaxPhotos {
		return nil, shared.NewDomainError("PHOTO_LIMIT_REACHED",
			fmt.Sprintf("A listing can have at most %d photos", s.config.MaxPhotos))
	}

	key := listing.NewPhotoKey(l.ID, req.ContentType)
	url, expiresAt, err := s.storage.GenerateUploadURL(ctx, key, req.ContentType, s.config.UploadURLExpiry)
	if err != nil {
		return nil, shared.WrapDomainError("STORAGE_ERROR", "Failed to prepare the upload", err)
	}
	return &UploadURLResponse{
		UploadURL:   url,
		Method:      http.MethodPut,
		StorageKey:  key,
		ContentType: req.ContentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// AttachPhoto records an uploaded object as a photo of the listing
func (s *PhotoService) AttachPhoto(ctx context.Context, listingID, userID uuid.UUID, req AttachPhotoRequest) (*PhotoResponse, error) {
	l, err := s.owned(ctx, listingID, userID)
	if err != nil {
		return nil, err
	}

	exists, err := s.storage.ObjectExists(ctx, req.StorageKey)
	if err != nil {
		return nil, shared.WrapDomainError("STORAGE_ERROR", "Failed to check the upload", err)
	}
	if !exists {
		return nil, shared.NewDomainError("PHOTO_NOT_UPLOADED", "The photo has not been uploaded yet")
	}

	photo, err := l.AddPhoto(req.StorageKey, req.ContentType, s.config.MaxPhotos)
	if err != nil {
		return nil, err
	}
	if err := s.listings.SavePhoto(ctx, photo); err != nil {
		return nil, err
	}

	logger.Or(ctx, s.logger).Info("Photo attached",
		zap.String("listing_id", l.ID.String()),
		zap.String("photo_id", photo.ID.String()),
	)
	resp := s.signer.photo(ctx, *photo)
	return &resp, nil
}

// RemovePhoto detaches a photo and deletes the stored object
func (s *PhotoService) RemovePhoto(ctx context.Context, listingID, userID, photoID uuid.UUID) error {
	l, err := s.owned(ctx, listingID, userID)
	if err != nil {
		return err
	}
	removed, err := l.RemovePhoto(photoID)
	if err != nil {
		return err
	}
	if err := s.listings.DeletePhoto(ctx, removed.ID); err != nil {
		return err
	}
	if err := s.listings.ReorderPhotos(ctx, l.ID, l.Photos); err != nil {
		return err
	}
	if err := s.storage.DeleteObject(ctx, removed.StorageKey); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to delete photo object",
			zap.String("storage_key", removed.StorageKey),
			zap.Error(err),
		)
	}
	return nil
}

func (s *PhotoService) owned(ctx context.Context, listingID, userID uuid.UUID) (*listing.Listing, error) {
	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(userID) {
		return nil, errNotOwner
	}
	return l, nil
}

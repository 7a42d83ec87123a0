package listing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
)

// AllowedPhotoContentTypes are the image types accepted for listing photos
var AllowedPhotoContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Photo is an image of a listing stored in object storage
type Photo struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ListingID   uuid.UUID `gorm:"type:uuid;not null;index"`
	StorageKey  string    `gorm:"type:varchar(512);not null;uniqueIndex"`
	ContentType string    `gorm:"type:varchar(100);not null"`
	Position    int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Photo) TableName() string {
	return "listing_photos"
}

// NewPhoto validates and creates a photo record
func NewPhoto(listingID uuid.UUID, storageKey, contentType string, position int) (*Photo, error) {
	if err := ValidatePhotoContentType(contentType); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(storageKey, PhotoKeyPrefix(listingID)) {
		return nil, shared.NewDomainError("INVALID_STORAGE_KEY", "Storage key does not belong to this listing")
	}
	return &Photo{
		ID:          uuid.New(),
		ListingID:   listingID,
		StorageKey:  storageKey,
		ContentType: contentType,
		Position:    position,
		CreatedAt:   time.Now(),
	}, nil
}

// ValidatePhotoContentType rejects anything but the allowed image types
func ValidatePhotoContentType(contentType string) error {
	if _, ok := AllowedPhotoContentTypes[contentType]; !ok {
		return shared.NewDomainError("INVALID_CONTENT_TYPE", "Photo must be a JPEG, PNG or WebP image")
	}
	return nil
}

// PhotoKeyPrefix is the object storage prefix for a listing's photos
func PhotoKeyPrefix(listingID uuid.UUID) string {
	return "listings/" + listingID.String() + "/"
}

// NewPhotoKey generates a fresh storage key for an upload
func NewPhotoKey(listingID uuid.UUID, contentType string) string {
	return PhotoKeyPrefix(listingID) + uuid.New().String() + AllowedPhotoContentTypes[contentType]
}

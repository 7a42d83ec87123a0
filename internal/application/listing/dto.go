package listing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
)

// CreateListingRequest is the body of POST /listings
type CreateListingRequest struct {
	Title       string          `json:"title" binding:"required,min=3,max=120"`
	Description string          `json:"description" binding:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" binding:"omitempty,currency"`
	Category    string          `json:"category" binding:"required"`
	City        string          `json:"city" binding:"max=100"`
	Condition   string          `json:"condition" binding:"omitempty,oneof=new like_new good fair for_parts"`
}

// UpdateListingRequest is the body of PUT /listings/:id. It replaces the content.
type UpdateListingRequest = CreateListingRequest

// SearchListingsRequest holds the query parameters of GET /listings
type SearchListingsRequest struct {
	Query     string `form:"q" binding:"max=200"`
	Category  string `form:"category"`
	City      string `form:"city"`
	MinPrice  string `form:"min_price" binding:"omitempty,numeric"`
	MaxPrice  string `form:"max_price" binding:"omitempty,numeric"`
	Condition string `form:"condition" binding:"omitempty,oneof=new like_new good fair for_parts"`
	SellerID  string `form:"seller_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=pending active rejected sold archived"`
	Sort      string `form:"sort" binding:"omitempty,oneof=newest price_asc price_desc"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// RejectListingRequest is the body of POST /admin/listings/:id/reject
type RejectListingRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// UploadURLRequest is the body of POST /listings/:id/photos/upload-url
type UploadURLRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// UploadURLResponse tells the client where to PUT the photo bytes
type UploadURLResponse struct {
	UploadURL   string    `json:"upload_url"`
	Method      string    `json:"method"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AttachPhotoRequest is the body of POST /listings/:id/photos
type AttachPhotoRequest struct {
	StorageKey  string `json:"storage_key" binding:"required,max=512"`
	ContentType string `json:"content_type" binding:"required"`
}

// PhotoResponse is a listing photo with a short-lived download URL
type PhotoResponse struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Position    int       `json:"position"`
}

// SellerSummary is the seller card shown next to a listing
type SellerSummary struct {
	ID            uuid.UUID       `json:"id"`
	Username      string          `json:"username"`
	DisplayName   string          `json:"display_name"`
	AvatarURL     string          `json:"avatar_url"`
	City          string          `json:"city"`
	RatingAverage decimal.Decimal `json:"rating_average"`
	RatingCount   int             `json:"rating_count"`
}

// ListingSummary is a search result row
type ListingSummary struct {
	ID            uuid.UUID       `json:"id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Category      string          `json:"category"`
	City          string          `json:"city"`
	Condition     string          `json:"condition,omitempty"`
	Status        string          `json:"status"`
	CoverPhotoURL string          `json:"cover_photo_url,omitempty"`
	FavoriteCount int64           `json:"favorite_count"`
	IsFavorite    bool            `json:"is_favorite"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListingResponse is the full listing detail
type ListingResponse struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	City            string          `json:"city"`
	Condition       string          `json:"condition,omitempty"`
	Status          string          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Photos          []PhotoResponse `json:"photos"`
	ViewCount       int64           `json:"view_count"`
	FavoriteCount   int64           `json:"favorite_count"`
	IsFavorite      bool            `json:"is_favorite"`
	IsOwner         bool            `json:"is_owner"`
	Seller          *SellerSummary  `json:"seller,omitempty"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

// CategoryResponse is an entry of GET /categories
type CategoryResponse struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

var categoryNames = map[listing.Category]string{
	listing.CategoryVehicles:    "Vehicles",
	listing.CategoryProperty:    "Property",
	listing.CategoryElectronics: "Electronics",
	listing.CategoryHomeGarden:  "Home & Garden",
	listing.CategoryFashion:     "Fashion",
	listing.CategoryJobs:        "Jobs",
	listing.CategoryServices:    "Services",
	listing.CategoryHobbies:     "Hobbies",
	listing.CategoryPets:        "Pets",
	listing.CategoryOther:       "Other",
}

// ToSellerSummary converts a user to the seller card
func ToSellerSummary(u *identity.User) *SellerSummary {
	if u == nil {
		return nil
	}
	return &SellerSummary{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		City:          u.City,
		RatingAverage: u.RatingAverage,
		RatingCount:   u.RatingCount,
	}
}

func toSummary(l *listing.Listing) ListingSummary {
	return ListingSummary{
		ID:            l.ID,
		SellerID:      l.SellerID,
		Title:         l.Title,
		Price:         l.Price,
		Currency:      l.Currency,
		Category:      string(l.Category),
		City:          l.City,
		Condition:     string(l.Condition),
		Status:        string(l.Status),
		FavoriteCount: l.FavoriteCount,
		PublishedAt:   l.PublishedAt,
		CreatedAt:     l.CreatedAt,
	}
}

func toResponse(l *listing.Listing) *ListingResponse {
	return &ListingResponse{
		ID:              l.ID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Currency:        l.Currency,
		Category:        string(l.Category),
		City:            l.City,
		Condition:       string(l.Condition),
		Status:          string(l.Status),
		RejectionReason: l.RejectionReason,
		Photos:          make([]PhotoResponse, 0, len(l.Photos)),
		ViewCount:       l.ViewCount,
		FavoriteCount:   l.FavoriteCount,
		PublishedAt:     l.PublishedAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
		Version:         l.Version,
	}
}

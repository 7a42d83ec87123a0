package listing

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a listing
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusSold     Status = "sold"
	StatusArchived Status = "archived"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected, StatusSold, StatusArchived:
		return true
	}
	return false
}

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// IsCurrencyCode reports whether raw is a three letter currency code, any case
func IsCurrencyCode(raw string) bool {
	return currencyRegex.MatchString(strings.ToUpper(strings.TrimSpace(raw)))
}

// Listing is an item or service offered on the marketplace
type Listing struct {
	shared.BaseAggregateRoot
	SellerID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Title           string          `gorm:"type:varchar(120);not null"`
	Description     string          `gorm:"type:text"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency        string          `gorm:"type:char(3);not null"`
	Category        Category        `gorm:"type:varchar(32);not null;index"`
	City            string          `gorm:"type:varchar(100);index"`
	Condition       Condition       `gorm:"type:varchar(20)"`
	Status          Status          `gorm:"type:varchar(20);not null;index"`
	RejectionReason string          `gorm:"type:varchar(500)"`
	FavoriteCount   int64           `gorm:"not null;default:0"`
	ViewCount       int64           `gorm:"not null;default:0"`
	PublishedAt     *time.Time
	Photos          []Photo `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Listing) TableName() string {
	return "listings"
}

// Details is the editable content of a listing
type Details struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Category    Category
	City        string
	Condition   Condition
}

// NewListing creates a listing. When moderation is required the listing waits
// in pending until an admin approves it; otherwise it is published immediately.
func NewListing(sellerID uuid.UUID, d Details, moderationRequired bool) (*Listing, error) {
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID cannot be empty")
	}
	d, err := normalizeDetails(d)
	if err != nil {
		return nil, err
	}

	l := &Listing{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SellerID:          sellerID,
		Photos:            make([]Photo, 0),
	}
	l.applyDetails(d)

	if moderationRequired {
		l.Status = StatusPending
	} else {
		l.publish()
	}

	l.AddDomainEvent(NewListingCreatedEvent(l))
	return l, nil
}

// Update replaces the listing content. A rejected listing goes back to review.
func (l *Listing) Update(d Details) error {
	if l.Status == StatusSold || l.Status == StatusArchived {
		return shared.NewDomainError("INVALID_STATE", "Sold or archived listings cannot be edited")
	}
	d, err := normalizeDetails(d)
	if err != nil {
		return err
	}
	l.applyDetails(d)

	if l.Status == StatusRejected {
		l.transition(StatusPending)
		l.RejectionReason = ""
	}

	l.IncrementVersion()
	l.AddDomainEvent(NewListingUpdatedEvent(l))
	return nil
}

// Approve publishes a pending listing
func (l *Listing) Approve() error {
	if l.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending listings can be approved")
	}
	l.publish()
	l.IncrementVersion()
	return nil
}

// Reject refuses a pending listing with a reason shown to the seller
func (l *Listing) Reject(reason string) error {
	if l.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending listings can be rejected")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason is required")
	}
	if len(reason) > 500 {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason cannot exceed 500 characters")
	}
	l.transition(StatusRejected)
	l.RejectionReason = reason
	l.IncrementVersion()
	return nil
}

// MarkSold marks an active listing as sold
func (l *Listing) MarkSold() error {
	if l.Status != StatusActive {
		return shared.NewDomainError("INVALID_STATE", "Only active listings can be marked as sold")
	}
	l.transition(StatusSold)
	l.IncrementVersion()
	return nil
}

// Archive hides an active or sold listing from search
func (l *Listing) Archive() error {
	if l.Status != StatusActive && l.Status != StatusSold {
		return shared.NewDomainError("INVALID_STATE", "Only active or sold listings can be archived")
	}
	l.transition(StatusArchived)
	l.IncrementVersion()
	return nil
}

// Reactivate brings an archived listing back, through review when moderation is on
func (l *Listing) Reactivate(moderationRequired bool) error {
	if l.Status != StatusArchived {
		return shared.NewDomainError("INVALID_STATE", "Only archived listings can be reactivated")
	}
	if moderationRequired {
		l.transition(StatusPending)
	} else {
		l.publish()
	}
	l.IncrementVersion()
	return nil
}

// AddPhoto attaches an uploaded object to the listing
func (l *Listing) AddPhoto(storageKey, contentType string, maxPhotos int) (*Photo, error) {
	if maxPhotos > 0 && len(l.Photos) >= maxPhotos {
		return nil, shared.NewDomainError("PHOTO_LIMIT_REACHED", "Listing already has the maximum number of photos")
	}
	for _, p := range l.Photos {
		if p.StorageKey == storageKey {
			return nil, shared.NewDomainError("PHOTO_ALREADY_ATTACHED", "Photo is already attached to this listing")
		}
	}
	photo, err := NewPhoto(l.ID, storageKey, contentType, len(l.Photos))
	if err != nil {
		return nil, err
	}
	l.Photos = append(l.Photos, *photo)
	l.Touch()
	return photo, nil
}

// RemovePhoto detaches a photo and renumbers the remaining positions
func (l *Listing) RemovePhoto(photoID uuid.UUID) (*Photo, error) {
	idx := -1
	for i := range l.Photos {
		if l.Photos[i].ID == photoID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, shared.ErrNotFound
	}
	removed := l.Photos[idx]
	l.Photos = append(l.Photos[:idx], l.Photos[idx+1:]...)
	for i := range l.Photos {
		l.Photos[i].Position = i
	}
	l.Touch()
	return &removed, nil
}

// IsOwnedBy reports whether userID is the seller
func (l *Listing) IsOwnedBy(userID uuid.UUID) bool {
	return l.SellerID == userID
}

// IsPublic reports whether the listing shows up for everyone
func (l *Listing) IsPublic() bool {
	return l.Status == StatusActive
}

// VisibleTo reports whether a viewer may see the listing. Non-public listings
// are only visible to the seller and moderators.
func (l *Listing) VisibleTo(viewerID uuid.UUID, isAdmin bool) bool {
	return l.IsPublic() || isAdmin || (viewerID != uuid.Nil && l.IsOwnedBy(viewerID))
}

func (l *Listing) publish() {
	now := time.Now()
	l.transition(StatusActive)
	l.PublishedAt = &now
	l.RejectionReason = ""
}

func (l *Listing) transition(to Status) {
	from := l.Status
	l.Status = to
	if from != "" && from != to {
		l.AddDomainEvent(NewListingStatusChangedEvent(l, from, to))
	}
}

func (l *Listing) applyDetails(d Details) {
	l.Title = d.Title
	l.Description = d.Description
	l.Price = d.Price
	l.Currency = d.Currency
	l.Category = d.Category
	l.City = d.City
	l.Condition = d.Condition
}

func normalizeDetails(d Details) (Details, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.City = strings.TrimSpace(d.City)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))

	titleLen := utf8.RuneCountInString(d.Title)
	if titleLen < 3 || titleLen > 120 {
		return d, shared.NewDomainError("INVALID_TITLE", "Title must be between 3 and 120 characters")
	}
	if utf8.RuneCountInString(d.Description) > 5000 {
		return d, shared.NewDomainError("INVALID_DESCRIPTION", "Description cannot exceed 5000 characters")
	}
	if d.Price.IsNegative() {
		return d, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if d.Price.GreaterThan(decimal.New(1, 10)) {
		return d, shared.NewDomainError("INVALID_PRICE", "Price is too large")
	}
	d.Price = d.Price.Round(2)
	if !currencyRegex.MatchString(d.Currency) {
		return d, shared.NewDomainError("INVALID_CURRENCY", "Currency must be a 3-letter ISO 4217 code")
	}
	if !d.Category.IsValid() {
		return d, shared.NewDomainError("INVALID_CATEGORY", "Unknown category")
	}
	if d.Condition != "" && !d.Condition.IsValid() {
		return d, shared.NewDomainError("INVALID_CONDITION", "Unknown condition")
	}
	if len(d.City) > 100 {
		return d, shared.NewDomainError("INVALID_CITY", "City cannot exceed 100 characters")
	}
	return d, nil
}

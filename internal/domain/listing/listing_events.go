package listing

import (
	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeListing is the aggregate type for listings
const AggregateTypeListing = "Listing"

// Listing domain event types
const (
	EventTypeListingCreated       = "listing.created"
	EventTypeListingUpdated       = "listing.updated"
	EventTypeListingStatusChanged = "listing.status_changed"
	EventTypeListingDeleted       = "listing.deleted"
)

// ListingCreatedEvent is published when a listing is created
type ListingCreatedEvent struct {
	shared.BaseDomainEvent
	SellerID uuid.UUID       `json:"seller_id"`
	Title    string          `json:"title"`
	Category Category        `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Status   Status          `json:"status"`
}

// NewListingCreatedEvent creates a new ListingCreatedEvent
func NewListingCreatedEvent(l *Listing) *ListingCreatedEvent {
	return &ListingCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListingCreated, AggregateTypeListing, l.ID),
		SellerID:        l.SellerID,
		Title:           l.Title,
		Category:        l.Category,
		Price:           l.Price,
		Status:          l.Status,
	}
}

// ListingUpdatedEvent is published when listing content changes
type ListingUpdatedEvent struct {
	shared.BaseDomainEvent
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// NewListingUpdatedEvent creates a new ListingUpdatedEvent
func NewListingUpdatedEvent(l *Listing) *ListingUpdatedEvent {
	return &ListingUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListingUpdated, AggregateTypeListing, l.ID),
		Title:           l.Title,
		Price:           l.Price,
	}
}

// ListingStatusChangedEvent is published on every lifecycle transition
type ListingStatusChangedEvent struct {
	shared.BaseDomainEvent
	SellerID  uuid.UUID `json:"seller_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
}

// NewListingStatusChangedEvent creates a new ListingStatusChangedEvent
func NewListingStatusChangedEvent(l *Listing, from, to Status) *ListingStatusChangedEvent {
	return &ListingStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListingStatusChanged, AggregateTypeListing, l.ID),
		SellerID:        l.SellerID,
		OldStatus:       from,
		NewStatus:       to,
	}
}

// ListingDeletedEvent is published after a listing is removed
type ListingDeletedEvent struct {
	shared.BaseDomainEvent
	SellerID uuid.UUID `json:"seller_id"`
}

// NewListingDeletedEvent creates a new ListingDeletedEvent
func NewListingDeletedEvent(l *Listing) *ListingDeletedEvent {
	return &ListingDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListingDeleted, AggregateTypeListing, l.ID),
		SellerID:        l.SellerID,
	}
}

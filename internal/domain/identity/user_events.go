package identity

import (
	"github.com/openground/backend/internal/domain/shared"
)

// AggregateTypeUser is the aggregate type for users
const AggregateTypeUser = "User"

// User domain event types
const (
	EventTypeUserRegistered     = "user.registered"
	EventTypeUserProfileUpdated = "user.profile_updated"
	EventTypeUserBanned         = "user.banned"
)

// UserRegisteredEvent is published when an account is created
type UserRegisteredEvent struct {
	shared.BaseDomainEvent
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent
func NewUserRegisteredEvent(user *User) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserRegistered, AggregateTypeUser, user.ID),
		Username:        user.Username,
		Email:           user.Email,
	}
}

// ProfileUpdatedEvent is published when a user edits their profile
type ProfileUpdatedEvent struct {
	shared.BaseDomainEvent
	DisplayName string `json:"display_name"`
	Locale      string `json:"locale"`
}

// NewProfileUpdatedEvent creates a new ProfileUpdatedEvent
func NewProfileUpdatedEvent(user *User) *ProfileUpdatedEvent {
	return &ProfileUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserProfileUpdated, AggregateTypeUser, user.ID),
		DisplayName:     user.DisplayName,
		Locale:          user.Locale,
	}
}

// UserBannedEvent is published when a moderator bans an account
type UserBannedEvent struct {
	shared.BaseDomainEvent
	Username string `json:"username"`
}

// NewUserBannedEvent creates a new UserBannedEvent
func NewUserBannedEvent(user *User) *UserBannedEvent {
	return &UserBannedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUserBanned, AggregateTypeUser, user.ID),
		Username:        user.Username,
	}
}

package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// UserStatus represents the status of a user account
type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusBanned UserStatus = "banned"
)

// UserRole is the coarse role of a marketplace account
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// PasswordCost is the bcrypt cost used for new password hashes.
var PasswordCost = bcrypt.DefaultCost

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	letterRegex   = regexp.MustCompile(`[a-zA-Z]`)
	digitRegex    = regexp.MustCompile(`[0-9]`)
)

// User is a marketplace account together with its public profile.
// It is the aggregate root for identity operations.
type User struct {
	shared.BaseAggregateRoot
	Email         string          `gorm:"type:varchar(200);not null;uniqueIndex"`
	Username      string          `gorm:"type:varchar(32);not null;uniqueIndex"`
	PasswordHash  string          `gorm:"type:varchar(255);not null"`
	DisplayName   string          `gorm:"type:varchar(100)"`
	Bio           string          `gorm:"type:text"`
	AvatarURL     string          `gorm:"type:varchar(500)"`
	City          string          `gorm:"type:varchar(100);index"`
	Phone         string          `gorm:"type:varchar(50)"`
	Locale        string          `gorm:"type:varchar(16);not null;default:'en'"`
	Role          UserRole        `gorm:"type:varchar(20);not null;default:'user'"`
	Status        UserStatus      `gorm:"type:varchar(20);not null;default:'active'"`
	RatingAverage decimal.Decimal `gorm:"type:decimal(3,2);not null;default:0"`
	RatingCount   int             `gorm:"not null;default:0"`
	LastLoginAt   *time.Time
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}

// NewUser creates an active user with a hashed password
func NewUser(email, username, password, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, shared.WrapDomainError("PASSWORD_HASH_ERROR", "Failed to hash password", err)
	}

	user := &User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Email:             email,
		Username:          username,
		PasswordHash:      hash,
		Locale:            DefaultLocale,
		Role:              RoleUser,
		Status:            UserStatusActive,
		RatingAverage:     decimal.Zero,
	}
	if err := user.SetDisplayName(displayName); err != nil {
		return nil, err
	}

	user.AddDomainEvent(NewUserRegisteredEvent(user))
	return user, nil
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	City        *string
	Phone       *string
	Locale      *string
}

// UpdateProfile applies a partial profile update
func (u *User) UpdateProfile(p ProfileUpdate) error {
	if p.DisplayName != nil {
		if err := u.SetDisplayName(*p.DisplayName); err != nil {
			return err
		}
	}
	if p.Bio != nil {
		bio := strings.TrimSpace(*p.Bio)
		if len(bio) > 1000 {
			return shared.NewDomainError("INVALID_BIO", "Bio cannot exceed 1000 characters")
		}
		u.Bio = bio
	}
	if p.AvatarURL != nil {
		if len(*p.AvatarURL) > 500 {
			return shared.NewDomainError("INVALID_AVATAR", "Avatar URL cannot exceed 500 characters")
		}
		u.AvatarURL = strings.TrimSpace(*p.AvatarURL)
	}
	if p.City != nil {
		city := strings.TrimSpace(*p.City)
		if len(city) > 100 {
			return shared.NewDomainError("INVALID_CITY", "City cannot exceed 100 characters")
		}
		u.City = city
	}
	if p.Phone != nil {
		phone := strings.TrimSpace(*p.Phone)
		if len(phone) > 50 {
			return shared.NewDomainError("INVALID_PHONE", "Phone cannot exceed 50 characters")
		}
		u.Phone = phone
	}
	if p.Locale != nil {
		locale, err := NormalizeLocale(*p.Locale)
		if err != nil {
			return err
		}
		u.Locale = locale
	}

	u.IncrementVersion()
	u.AddDomainEvent(NewProfileUpdatedEvent(u))
	return nil
}

// SetDisplayName sets the display name, falling back to the username when empty
func (u *User) SetDisplayName(displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > 100 {
		return shared.NewDomainError("INVALID_DISPLAY_NAME", "Display name cannot exceed 100 characters")
	}
	if displayName == "" {
		displayName = u.Username
	}
	u.DisplayName = displayName
	return nil
}

// VerifyPassword verifies if the provided password matches
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ChangePassword changes the password after checking the current one
func (u *User) ChangePassword(oldPassword, newPassword string) error {
	if !u.VerifyPassword(oldPassword) {
		return shared.NewDomainError("INVALID_PASSWORD", "Current password is incorrect")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return shared.WrapDomainError("PASSWORD_HASH_ERROR", "Failed to hash password", err)
	}
	u.PasswordHash = hash
	u.IncrementVersion()
	return nil
}

// RecordLogin stamps a successful login
func (u *User) RecordLogin() {
	now := time.Now()
	u.LastLoginAt = &now
	u.Touch()
}

// Ban blocks the account from logging in
func (u *User) Ban() error {
	if u.Status == UserStatusBanned {
		return shared.NewDomainError("ALREADY_BANNED", "User is already banned")
	}
	u.Status = UserStatusBanned
	u.IncrementVersion()
	u.AddDomainEvent(NewUserBannedEvent(u))
	return nil
}

// Unban restores a banned account
func (u *User) Unban() error {
	if u.Status != UserStatusBanned {
		return shared.NewDomainError("NOT_BANNED", "User is not banned")
	}
	u.Status = UserStatusActive
	u.IncrementVersion()
	return nil
}

// PromoteToAdmin grants moderation rights
func (u *User) PromoteToAdmin() {
	u.Role = RoleAdmin
	u.IncrementVersion()
}

// SetRating replaces the aggregated review rating
func (u *User) SetRating(average decimal.Decimal, count int) {
	u.RatingAverage = average.Round(2)
	u.RatingCount = count
	u.Touch()
}

// IsAdmin returns true for moderators
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsBanned returns true if the account is banned
func (u *User) IsBanned() bool {
	return u.Status == UserStatusBanned
}

// CanLogin returns true if the account may obtain tokens
func (u *User) CanLogin() bool {
	return u.Status == UserStatusActive
}

func validateUsername(username string) error {
	if username == "" {
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	if len(username) < 3 {
		return shared.NewDomainError("INVALID_USERNAME", "Username must be at least 3 characters")
	}
	if len(username) > 32 {
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot exceed 32 characters")
	}
	if !usernameRegex.MatchString(username) {
		return shared.NewDomainError("INVALID_USERNAME", "Username can only contain lowercase letters, numbers and underscores")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return shared.NewDomainError("INVALID_PASSWORD", "Password must be at least 8 characters")
	}
	if len(password) > 72 {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 72 characters")
	}
	if !letterRegex.MatchString(password) || !digitRegex.MatchString(password) {
		return shared.NewDomainError("INVALID_PASSWORD", "Password must contain at least one letter and one number")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot be empty")
	}
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

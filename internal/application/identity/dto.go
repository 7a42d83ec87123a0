package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openground/backend/internal/domain/identity"
)

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=200"`
	Username    string `json:"username" binding:"required,min=3,max=32"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"max=100"`
	// Locale defaults to the negotiated request language
	Locale string `json:"locale" binding:"omitempty,locale"`
}

// LoginRequest is the body of POST /auth/login. Identifier is an email or a username.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest is the optional body of POST /auth/logout
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateProfileRequest is the body of PUT /profile; omitted fields are unchanged
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Bio         *string `json:"bio" binding:"omitempty,max=1000"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,max=500"`
	City        *string `json:"city" binding:"omitempty,max=100"`
	Phone       *string `json:"phone" binding:"omitempty,max=50"`
	Locale      *string `json:"locale" binding:"omitempty,locale"`
}

// ChangePasswordRequest is the body of PUT /profile/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

// TokenResponse carries an issued token pair
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token TokenResponse `json:"token"`
	User  UserResponse  `json:"user"`
}

// UserResponse is the full account view returned to its owner
type UserResponse struct {
	ID            uuid.UUID       `json:"id"`
	Email         string          `json:"email"`
	Username      string          `json:"username"`
	DisplayName   string          `json:"display_name"`
	Bio           string          `json:"bio"`
	AvatarURL     string          `json:"avatar_url"`
	City          string          `json:"city"`
	Phone         string          `json:"phone"`
	Locale        string          `json:"locale"`
	Role          string          `json:"role"`
	Status        string          `json:"status"`
	RatingAverage decimal.Decimal `json:"rating_average"`
	RatingCount   int             `json:"rating_count"`
	LastLoginAt   *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProfileResponse is the public view of a user; it never carries contact details
type ProfileResponse struct {
	ID            uuid.UUID       `json:"id"`
	Username      string          `json:"username"`
	DisplayName   string          `json:"display_name"`
	Bio           string          `json:"bio"`
	AvatarURL     string          `json:"avatar_url"`
	City          string          `json:"city"`
	RatingAverage decimal.Decimal `json:"rating_average"`
	RatingCount   int             `json:"rating_count"`
	MemberSince   time.Time       `json:"member_since"`
}

// ToUserResponse converts a domain user to its owner view
func ToUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		City:          u.City,
		Phone:         u.Phone,
		Locale:        u.Locale,
		Role:          string(u.Role),
		Status:        string(u.Status),
		RatingAverage: u.RatingAverage,
		RatingCount:   u.RatingCount,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// ToProfileResponse converts a domain user to its public view
func ToProfileResponse(u *identity.User) ProfileResponse {
	return ProfileResponse{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		City:          u.City,
		RatingAverage: u.RatingAverage,
		RatingCount:   u.RatingCount,
		MemberSince:   u.CreatedAt,
	}
}

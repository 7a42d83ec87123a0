package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/infrastructure/logger"
)

var errInvalidCredentials = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email, username or password")

// AuthService handles registration, login and token lifecycle
type AuthService struct {
	users     identity.UserRepository
	tokens    *auth.JWTService
	blacklist auth.TokenBlacklist
	events    shared.EventPublisher
	logger    *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users identity.UserRepository,
	tokens *auth.JWTService,
	blacklist auth.TokenBlacklist,
	events shared.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		blacklist: blacklist,
		events:    events,
		logger:    logger,
	}
}

// Register creates an account and signs it in
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.ToLower(strings.TrimSpace(req.Username))

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Email is already registered")
	}
	exists, err = s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Username is already taken")
	}

	user, err := identity.NewUser(email, username, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}
	if req.Locale != "" {
		locale, err := identity.NormalizeLocale(req.Locale)
		if err != nil {
			return nil, err
		}
		user.Locale = locale
	}
	user.RecordLogin()
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := shared.PublishAndClear(ctx, s.events, user); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish user events", zap.Error(err))
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("User registered", zap.String("user_id", user.ID.String()))
	return &AuthResponse{Token: *pair, User: ToUserResponse(user)}, nil
}

// Login authenticates by email or username
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))

	var (
		user *identity.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.FindByEmail(ctx, identifier)
	} else {
		user, err = s.users.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Or(ctx, s.logger).Warn("Login for unknown account")
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !user.VerifyPassword(req.Password) {
		logger.Or(ctx, s.logger).Warn("Invalid password", zap.String("user_id", user.ID.String()))
		return nil, errInvalidCredentials
	}
	if !user.CanLogin() {
		return nil, shared.NewDomainError("ACCOUNT_BANNED", "This account has been suspended")
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	user.RecordLogin()
	if err := s.users.Update(ctx, user); err != nil {
		// the tokens are valid regardless
		logger.Or(ctx, s.logger).Error("Failed to record login", zap.Error(err))
	}

	logger.Or(ctx, s.logger).Info("User logged in", zap.String("user_id", user.ID.String()))
	return &AuthResponse{Token: *pair, User: ToUserResponse(user)}, nil
}

// Refresh rotates a refresh token. The old token is revoked so it cannot be
// replayed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, tokenError(auth.ErrInvalidClaims)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, tokenError(auth.ErrInvalidClaims)
		}
		return nil, err
	}
	if !user.CanLogin() {
		return nil, shared.NewDomainError("ACCOUNT_BANNED", "This account has been suspended")
	}

	pair, err := s.tokens.RefreshTokenPair(claims, subjectOf(user))
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		logger.Or(ctx, s.logger).Error("Failed to revoke rotated refresh token", zap.Error(err))
	}
	return toTokenResponse(pair), nil
}

// Logout revokes the access token and, when given, the refresh token
func (s *AuthService) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if err := s.blacklist.Revoke(ctx, access.ID, access.RemainingTTL()); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		// an unusable refresh token needs no revocation
		return nil
	}
	if claims.UserID != access.UserID {
		return shared.NewDomainError("FORBIDDEN", "Refresh token belongs to another account")
	}
	return s.blacklist.Revoke(ctx, claims.ID, claims.RemainingTTL())
}

// Authenticate validates an access token against signature, expiry and the
// blacklist. Used by the HTTP and stream middleware.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Me returns the full account of the caller
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

// ChangePassword replaces the password and revokes every issued token
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.ChangePassword(req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.blacklist.RevokeUser(ctx, user.ID.String(), s.tokens.RefreshTokenExpiration()); err != nil {
		logger.Or(ctx, s.logger).Error("Failed to revoke sessions after password change", zap.Error(err))
	}
	logger.Or(ctx, s.logger).Info("Password changed", zap.String("user_id", user.ID.String()))
	return nil
}

func (s *AuthService) checkRevoked(ctx context.Context, claims *auth.Claims) error {
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return tokenError(auth.ErrTokenBlacklisted)
	}
	userID, err := claims.UserUUID()
	if err != nil {
		return tokenError(auth.ErrInvalidClaims)
	}
	revoked, err = s.blacklist.IsUserRevoked(ctx, userID.String(), claims.IssuedAtTime())
	if err != nil {
		return err
	}
	if revoked {
		return tokenError(auth.ErrTokenBlacklisted)
	}
	return nil
}

func (s *AuthService) issue(user *identity.User) (*TokenResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(subjectOf(user))
	if err != nil {
		return nil, shared.WrapDomainError("INTERNAL_ERROR", "Failed to issue tokens", err)
	}
	return toTokenResponse(pair), nil
}

func subjectOf(user *identity.User) auth.Subject {
	return auth.Subject{UserID: user.ID, Username: user.Username, Role: string(user.Role)}
}

func toTokenResponse(p *auth.TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		AccessTokenExpiresAt:  p.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt,
		TokenType:             p.TokenType,
	}
}

// tokenError maps JWT failures to domain errors the HTTP layer renders as 401.
func tokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return shared.WrapDomainError("TOKEN_EXPIRED", "Token has expired", err)
	case errors.Is(err, auth.ErrMaxRefreshExceeded):
		return shared.WrapDomainError("TOKEN_MAX_REFRESH", "Session is too old, please log in again", err)
	case errors.Is(err, auth.ErrTokenBlacklisted):
		return shared.WrapDomainError("TOKEN_REVOKED", "Token has been revoked", err)
	default:
		return shared.WrapDomainError("TOKEN_INVALID", "Invalid token", err)
	}
}

package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/infrastructure/logger"
)

// ProfileService serves public profiles, profile edits and account moderation
type ProfileService struct {
	users     identity.UserRepository
	blacklist auth.TokenBlacklist
	tokens    *auth.JWTService
	events    shared.EventPublisher
	logger    *zap.Logger
}

// NewProfileService creates a new ProfileService
func NewProfileService(
	users identity.UserRepository,
	blacklist auth.TokenBlacklist,
	tokens *auth.JWTService,
	events shared.EventPublisher,
	logger *zap.Logger,
) *ProfileService {
	return &ProfileService{
		users:     users,
		blacklist: blacklist,
		tokens:    tokens,
		events:    events,
		logger:    logger,
	}
}

// GetProfile returns the public profile of any user
func (s *ProfileService) GetProfile(ctx context.Context, id uuid.UUID) (*ProfileResponse, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToProfileResponse(user)
	return &resp, nil
}

// GetProfiles returns public profiles keyed by id. Unknown ids are skipped.
func (s *ProfileService) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProfileResponse, error) {
	out := make(map[uuid.UUID]ProfileResponse, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = ToProfileResponse(u)
	}
	return out, nil
}

// UpdateProfile applies a partial update to the caller's profile
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := user.UpdateProfile(identity.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		City:        req.City,
		Phone:       req.Phone,
		Locale:      req.Locale,
	}); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if err := shared.PublishAndClear(ctx, s.events, user); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish profile events", zap.Error(err))
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

// RecordRating stores the aggregated review rating of a user
func (s *ProfileService) RecordRating(ctx context.Context, userID uuid.UUID, average decimal.Decimal, count int) error {
	return s.users.UpdateRating(ctx, userID, average.Round(2), count)
}

// Ban suspends an account and revokes all of its tokens. Admins cannot be banned.
func (s *ProfileService) Ban(ctx context.Context, adminID, userID uuid.UUID) (*UserResponse, error) {
	if adminID == userID {
		return nil, shared.NewDomainError("FORBIDDEN", "You cannot ban yourself")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, shared.NewDomainError("FORBIDDEN", "Administrators cannot be banned")
	}
	if err := user.Ban(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if err := s.blacklist.RevokeUser(ctx, user.ID.String(), s.tokens.RefreshTokenExpiration()); err != nil {
		return nil, err
	}
	if err := shared.PublishAndClear(ctx, s.events, user); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish ban event", zap.Error(err))
	}
	logger.Or(ctx, s.logger).Info("User banned",
		zap.String("user_id", user.ID.String()),
		zap.String("admin_id", adminID.String()),
	)
	resp := ToUserResponse(user)
	return &resp, nil
}

// Unban restores a suspended account
func (s *ProfileService) Unban(ctx context.Context, adminID, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := user.Unban(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("User unbanned",
		zap.String("user_id", user.ID.String()),
		zap.String("admin_id", adminID.String()),
	)
	resp := ToUserResponse(user)
	return &resp, nil
}

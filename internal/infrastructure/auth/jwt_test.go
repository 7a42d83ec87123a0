package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "test-secret-key-that-is-long-enough-32",
		RefreshSecret:          "test-refresh-secret-key-long-enough-32",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 7 * 24 * time.Hour,
		Issuer:                 "openground-test",
		MaxRefreshCount:        2,
	}
}

func testSubject() Subject {
	return Subject{UserID: uuid.New(), Username: "alice", Role: "user"}
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	sub := testSubject()

	pair, err := svc.GenerateTokenPair(sub)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshTokenExpiresAt.After(pair.AccessTokenExpiresAt))

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sub.UserID.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.ID)
	assert.False(t, claims.IsAdmin())

	id, err := claims.UserUUID()
	require.NoError(t, err)
	assert.Equal(t, sub.UserID, id)
	assert.Greater(t, claims.RemainingTTL(), 14*time.Minute)

	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.Zero(t, refresh.RefreshCount)
}

func TestJWTService_WrongTokenKind(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	pair, err := svc.GenerateTokenPair(testSubject())
	require.NoError(t, err)

	// different secrets: a refresh token does not verify as access token
	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	cfg := testJWTConfig()
	cfg.RefreshSecret = ""
	shared := NewJWTService(cfg)
	pair, err = shared.GenerateTokenPair(testSubject())
	require.NoError(t, err)
	_, err = shared.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	pair, err := svc.GenerateTokenPair(testSubject())
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)

	// refresh token still valid an hour later
	_, err = svc.ValidateRefreshToken(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestJWTService_NotYetValid(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	pair, err := svc.GenerateTokenPair(testSubject())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestJWTService_WrongIssuerAndTampering(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	pair, err := svc.GenerateTokenPair(testSubject())
	require.NoError(t, err)

	other := testJWTConfig()
	other.Issuer = "someone-else"
	_, err = NewJWTService(other).ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other2, err := svc.GenerateTokenPair(testSubject())
	require.NoError(t, err)
	parts := strings.Split(pair.AccessToken, ".")
	foreign := strings.Split(other2.AccessToken, ".")
	tampered := parts[0] + "." + foreign[1] + "." + parts[2]
	_, err = svc.ValidateAccessToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "openground-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:    uuid.NewString(),
		TokenType: TokenTypeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_MissingUserID(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "openground-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: TokenTypeAccess,
	}
	token, err := svc.sign(claims, svc.accessSecret)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestJWTService_RefreshTokenPair(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	sub := testSubject()
	pair, err := svc.GenerateTokenPair(sub)
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		claims, err := svc.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		pair, err = svc.RefreshTokenPair(claims, sub)
		require.NoError(t, err)

		refreshed, err := svc.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, want, refreshed.RefreshCount)
	}

	claims, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.RefreshTokenPair(claims, sub)
	assert.ErrorIs(t, err, ErrMaxRefreshExceeded)

	access, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	_, err = svc.RefreshTokenPair(access, sub)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestClaims_Helpers(t *testing.T) {
	c := &Claims{Role: "admin"}
	assert.True(t, c.IsAdmin())
	assert.True(t, c.IssuedAtTime().IsZero())
	assert.Zero(t, c.RemainingTTL())

	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	assert.Zero(t, c.RemainingTTL())
}

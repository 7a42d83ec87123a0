package identity

import (
	"testing"

	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	PasswordCost = bcrypt.MinCost
}

func strPtr(s string) *string { return &s }

func TestNewUser(t *testing.T) {
	t.Run("creates active user with normalized identity", func(t *testing.T) {
		user, err := NewUser("  Alice@Example.COM ", "Alice_01", "secret123", "")

		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "alice_01", user.Username)
		assert.Equal(t, "alice_01", user.DisplayName)
		assert.Equal(t, UserStatusActive, user.Status)
		assert.Equal(t, RoleUser, user.Role)
		assert.Equal(t, DefaultLocale, user.Locale)
		assert.True(t, user.VerifyPassword("secret123"))
		assert.False(t, user.VerifyPassword("wrong"))

		events := user.GetDomainEvents()
		require.Len(t, events, 1)
		_, ok := events[0].(*UserRegisteredEvent)
		assert.True(t, ok)
	})

	tests := []struct {
		name     string
		email    string
		username string
		password string
		code     string
	}{
		{"empty email", "", "alice", "secret123", "INVALID_EMAIL"},
		{"bad email", "not-an-email", "alice", "secret123", "INVALID_EMAIL"},
		{"short username", "a@b.io", "al", "secret123", "INVALID_USERNAME"},
		{"username with dash", "a@b.io", "al-ice", "secret123", "INVALID_USERNAME"},
		{"short password", "a@b.io", "alice", "abc1", "INVALID_PASSWORD"},
		{"password without digit", "a@b.io", "alice", "abcdefghij", "INVALID_PASSWORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.email, tt.username, tt.password, "")
			require.Error(t, err)
			var de *shared.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestUser_UpdateProfile(t *testing.T) {
	user, err := NewUser("bob@example.com", "bob", "secret123", "Bob")
	require.NoError(t, err)
	user.ClearDomainEvents()

	err = user.UpdateProfile(ProfileUpdate{
		Bio:    strPtr("  Selling vintage bikes  "),
		City:   strPtr("Lyon"),
		Locale: strPtr("fr-FR"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Selling vintage bikes", user.Bio)
	assert.Equal(t, "Lyon", user.City)
	assert.Equal(t, "fr", user.Locale)
	assert.Equal(t, "Bob", user.DisplayName)
	assert.Equal(t, 2, user.Version)
	assert.Len(t, user.GetDomainEvents(), 1)

	err = user.UpdateProfile(ProfileUpdate{Locale: strPtr("???")})
	assert.Error(t, err)
}

func TestUser_ChangePassword(t *testing.T) {
	user, err := NewUser("carol@example.com", "carol", "secret123", "")
	require.NoError(t, err)

	assert.Error(t, user.ChangePassword("wrong", "newsecret1"))
	require.NoError(t, user.ChangePassword("secret123", "newsecret1"))
	assert.True(t, user.VerifyPassword("newsecret1"))
}

func TestUser_BanUnban(t *testing.T) {
	user, err := NewUser("dan@example.com", "dan", "secret123", "")
	require.NoError(t, err)

	require.NoError(t, user.Ban())
	assert.False(t, user.CanLogin())
	assert.Error(t, user.Ban())

	require.NoError(t, user.Unban())
	assert.True(t, user.CanLogin())
	assert.Error(t, user.Unban())
}

func TestUser_SetRating(t *testing.T) {
	user, err := NewUser("eve@example.com", "eve", "secret123", "")
	require.NoError(t, err)

	user.SetRating(decimal.RequireFromString("4.3333"), 3)

	assert.Equal(t, "4.33", user.RatingAverage.StringFixed(2))
	assert.Equal(t, 3, user.RatingCount)
}

func TestMatchLocale(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"fr-CA,fr;q=0.9,en;q=0.8", "fr"},
		{"es-MX", "es"},
		{"", "en"},
		{"de-DE", "en"},
		{"en-GB,en;q=0.5", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchLocale(tt.header))
		})
	}
}

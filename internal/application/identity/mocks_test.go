package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/infrastructure/config"
)

func init() {
	identity.PasswordCost = bcrypt.MinCost
}

// MockUserRepository is a mock implementation of identity.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*identity.User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateRating(ctx context.Context, id uuid.UUID, average decimal.Decimal, count int) error {
	return m.Called(ctx, id, average, count).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func newJWT() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "identity-test-access-secret-0123456789",
		RefreshSecret:          "identity-test-refresh-secret-012345678",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 24 * time.Hour,
		Issuer:                 "openground-test",
		MaxRefreshCount:        5,
	})
}

func newTestUser(t *testing.T, username string) *identity.User {
	t.Helper()
	u, err := identity.NewUser(username+"@example.com", username, "secret123", "")
	require.NoError(t, err)
	u.ClearDomainEvents()
	return u
}

type fixture struct {
	users     *MockUserRepository
	tokens    *auth.JWTService
	blacklist *auth.InMemoryTokenBlacklist
	events    *recordingPublisher
	auth      *AuthService
	profiles  *ProfileService
}

func newFixture() *fixture {
	f := &fixture{
		users:     new(MockUserRepository),
		tokens:    newJWT(),
		blacklist: auth.NewInMemoryTokenBlacklist(),
		events:    &recordingPublisher{},
	}
	f.auth = NewAuthService(f.users, f.tokens, f.blacklist, f.events, zap.NewNop())
	f.profiles = NewProfileService(f.users, f.blacklist, f.tokens, f.events, zap.NewNop())
	return f
}

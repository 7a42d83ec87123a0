package persistence

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDB returns a GORM handle on a mocked PostgreSQL connection
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

// newSQLiteDB returns a migrated in-memory database private to the test
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, (&Database{DB: db, Driver: "sqlite"}).AutoMigrate())
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *identity.User {
	t.Helper()
	u := &identity.User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Email:             username + "@example.com",
		Username:          username,
		PasswordHash:      "x",
		DisplayName:       username,
		Locale:            "en",
		Role:              identity.RoleUser,
		Status:            identity.UserStatusActive,
		RatingAverage:     decimal.Zero,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

type listingSeed struct {
	title    string
	price    string
	city     string
	category listing.Category
	pending  bool
	age      time.Duration
}

func seedListing(t *testing.T, db *gorm.DB, seller uuid.UUID, s listingSeed) *listing.Listing {
	t.Helper()
	if s.category == "" {
		s.category = listing.CategoryElectronics
	}
	l, err := listing.NewListing(seller, listing.Details{
		Title:     s.title,
		Price:     decimal.RequireFromString(s.price),
		Currency:  "EUR",
		Category:  s.category,
		City:      s.city,
		Condition: listing.ConditionGood,
	}, s.pending)
	require.NoError(t, err)
	if s.age > 0 {
		at := time.Now().Add(-s.age)
		l.CreatedAt = at
		if l.PublishedAt != nil {
			l.PublishedAt = &at
		}
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

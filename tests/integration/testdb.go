//go:build integration

// Package integration runs the OpenGround API and its repositories against a
// real PostgreSQL started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/openground/backend/internal/infrastructure/migration"
	"github.com/openground/backend/internal/infrastructure/persistence"
)

const (
	postgresImage = "postgres:16-alpine"
	dbUser        = "postgres"
	dbPassword    = "openground"
	testPassword  = "correct-horse-battery"
)

var (
	sharedContainer *tcpostgres.PostgresContainer
	sharedMu        sync.Mutex
	sharedDSN       string
)

// TestDB is a migrated PostgreSQL database
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container *tcpostgres.PostgresContainer
	DSN       string
	Name      string
	t         *testing.T
}

func startContainer(ctx context.Context, name string) (*tcpostgres.PostgresContainer, error) {
	return tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase(name),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
}

// NewTestDB starts a dedicated container, for tests that change the schema
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := startContainer(ctx, "openground_test")
	require.NoError(t, err, "start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, sqlDB := connect(t, dsn)
	tdb := &TestDB{DB: db, SqlDB: sqlDB, Container: container, DSN: dsn, Name: "openground_test", t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSharedTestDB returns a connection to the package-wide container with
// every migration applied. Call CleanTables to isolate tests.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	sharedMu.Lock()
	defer sharedMu.Unlock()

	ctx := context.Background()
	if sharedContainer == nil {
		container, err := startContainer(ctx, "openground_shared")
		require.NoError(t, err, "start shared PostgreSQL container")
		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)

		_, sqlDB := connect(t, dsn)
		migrateUp(t, sqlDB)
		sqlDB.Close()

		sharedContainer = container
		sharedDSN = dsn
	}

	db, sqlDB := connect(t, sharedDSN)
	tdb := &TestDB{DB: db, SqlDB: sqlDB, Container: sharedContainer, DSN: sharedDSN, Name: "openground_shared", t: t}
	t.Cleanup(func() { sqlDB.Close() })
	return tdb
}

// Close releases the connection and terminates a dedicated container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		tdb.SqlDB.Close()
	}
	if tdb.Container != nil && tdb.Container != sharedContainer {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("terminate container: %v", err)
		}
	}
}

// DatabaseConfig points the application at this database. Migrations are
// already applied, so AutoMigrate stays off.
func (tdb *TestDB) DatabaseConfig() config.DatabaseConfig {
	tdb.t.Helper()
	ctx := context.Background()
	host, err := tdb.Container.Host(ctx)
	require.NoError(tdb.t, err)
	port, err := tdb.Container.MappedPort(ctx, "5432/tcp")
	require.NoError(tdb.t, err)

	return config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            dbUser,
		Password:        dbPassword,
		DBName:          tdb.Name,
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// CleanTables truncates every table except the migration bookkeeping
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err)

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %q CASCADE", table)).Error; err != nil {
			tdb.t.Logf("truncate %s: %v", table, err)
		}
	}
}

// CreateUser inserts an active member whose password is "correct-horse-battery"
func (tdb *TestDB) CreateUser(username string) *identity.User {
	tdb.t.Helper()
	u, err := identity.NewUser(username+"@example.com", username, testPassword, "")
	require.NoError(tdb.t, err)
	require.NoError(tdb.t, persistence.NewGormUserRepository(tdb.DB).Create(context.Background(), u))
	return u
}

// CreateListing inserts a published listing for seller
func (tdb *TestDB) CreateListing(sellerID uuid.UUID, title, city, price string) *listing.Listing {
	tdb.t.Helper()
	l, err := listing.NewListing(sellerID, listing.Details{
		Title:     title,
		Price:     decimal.RequireFromString(price),
		Currency:  "EUR",
		Category:  listing.CategoryHobbies,
		City:      city,
		Condition: listing.ConditionGood,
	}, false)
	require.NoError(tdb.t, err)
	require.NoError(tdb.t, persistence.NewGormListingRepository(tdb.DB).Create(context.Background(), l))
	return l
}

// CleanupSharedContainer terminates the shared container; call it from TestMain
func CleanupSharedContainer() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedContainer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = sharedContainer.Terminate(ctx)
	sharedContainer = nil
	sharedDSN = ""
}

func connect(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, sqlDB
}

// migrateUp applies the embedded migrations. The migrator is not closed
// because closing it closes sqlDB.
func migrateUp(t *testing.T, sqlDB *sql.DB) *migration.Migrator {
	t.Helper()
	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(), "apply migrations")
	return m
}

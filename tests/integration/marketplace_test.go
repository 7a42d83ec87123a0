//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/app"
	messagingapp "github.com/openground/backend/internal/application/messaging"
	reportapp "github.com/openground/backend/internal/application/report"
	reviewapp "github.com/openground/backend/internal/application/review"
	"github.com/openground/backend/internal/client"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/openground/backend/internal/infrastructure/persistence"
	"github.com/openground/backend/internal/infrastructure/realtime"
	"github.com/openground/backend/internal/infrastructure/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	code := m.Run()
	CleanupSharedContainer()
	CleanupSharedRedis()
	os.Exit(code)
}

func appConfig(db config.DatabaseConfig) *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "openground", Env: "test"},
		Database: db,
		JWT: config.JWTConfig{
			Secret:                 "integration-secret-that-is-long-enough",
			AccessTokenExpiration:  15 * time.Minute,
			RefreshTokenExpiration: time.Hour,
			Issuer:                 "openground-integration",
			MaxRefreshCount:        5,
		},
		HTTP:        config.HTTPConfig{MaxBodySize: 1 << 20},
		Realtime:    config.RealtimeConfig{HeartbeatInterval: time.Minute},
		Marketplace: config.MarketplaceConfig{MaxPhotosPerListing: 10, DefaultCurrency: "EUR"},
		Log:         config.LogConfig{Level: "error"},
	}
}

// startApp serves the API on tdb and returns its base URL
func startApp(t *testing.T, tdb *TestDB) (*app.App, string) {
	t.Helper()
	ctx := context.Background()
	a, err := app.New(ctx, appConfig(tdb.DatabaseConfig()), zap.NewNop(),
		app.WithVersion("integration"),
		app.WithStorage(storage.NewMemoryObjectStorage("http://objects.test")),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Engine)
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, a.Shutdown(context.Background()))
	})
	return a, srv.URL
}

func login(t *testing.T, baseURL, username string) *client.Client {
	t.Helper()
	c := client.New(baseURL)
	_, err := c.Login(context.Background(), username, testPassword)
	require.NoError(t, err)
	return c
}

func TestMarketplace_SearchAndFavorites(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	_, baseURL := startApp(t, tdb)

	seller := tdb.CreateUser("seller")
	tdb.CreateUser("buyer")
	bike := tdb.CreateListing(seller.ID, "Vintage Road Bike", "Lyon", "250.00")
	tdb.CreateListing(seller.ID, "Bike helmet", "Paris", "30.00")
	tdb.CreateListing(seller.ID, "Guitar amp", "Lyon", "90.00")

	ctx := context.Background()
	buyer := login(t, baseURL, "buyer")

	found, err := buyer.SearchListings(ctx, client.SearchParams{Query: "BIKE", City: "lyon"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bike.ID, found[0].ID)
	assert.True(t, decimal.RequireFromString("250").Equal(found[0].Price))
	assert.False(t, found[0].IsFavorite)

	store := client.NewFavoriteStore(buyer, zap.NewNop())
	require.NoError(t, store.Sync(ctx))
	assert.Empty(t, store.IDs())

	saved, err := store.Toggle(ctx, bike.ID)
	require.NoError(t, err)
	assert.True(t, saved)

	ids, err := buyer.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bike.ID}, ids)

	found, err = buyer.SearchListings(ctx, client.SearchParams{Query: "road"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsFavorite)

	// concurrent toggles on one listing are serialised per id
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Toggle(ctx, bike.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.True(t, store.IsSaved(bike.ID))

	ids, err = buyer.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bike.ID}, ids)

	// the seller cannot save their own listing
	err = login(t, baseURL, "seller").SetFavorite(ctx, bike.ID, true)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "OWN_LISTING", apiErr.Code)
}

func TestMarketplace_LiveThread(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	a, baseURL := startApp(t, tdb)

	seller := tdb.CreateUser("seller")
	buyer := tdb.CreateUser("buyer")
	bike := tdb.CreateListing(seller.ID, "Road bike", "Lyon", "250.00")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	started, err := a.Services.Threads.StartThread(ctx, buyer.ID, messagingapp.StartThreadRequest{
		ListingID: bike.ID.String(),
		Body:      "Is it still available?",
	})
	require.NoError(t, err)
	threadID := started.Thread.ID

	buyerClient := login(t, baseURL, "buyer")
	sellerClient := login(t, baseURL, "seller")

	history, err := buyerClient.Messages(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	cache := client.NewThreadCache()
	cache.Append(threadID, history...)

	received := make(chan client.Message, 4)
	typing := make(chan bool, 4)
	stream := client.NewMessageStream(buyerClient, cache,
		client.OnMessage(func(m client.Message) { received <- m }),
		client.OnEvent(func(_ uuid.UUID, ev realtime.Event) {
			var p realtime.TypingPayload
			if ev.Name == realtime.EventTyping && json.Unmarshal(ev.Data, &p) == nil && p.UserID == seller.ID {
				typing <- p.Typing
			}
		}),
	)
	defer stream.Close()
	stream.Subscribe(ctx, threadID)

	require.Eventually(t, func() bool { return a.Hub.ThreadClients(threadID) == 1 },
		5*time.Second, 20*time.Millisecond)

	notifier := client.NewTypingNotifier(sellerClient, threadID, client.WithIdle(100*time.Millisecond))
	notifier.Keystroke()
	select {
	case v := <-typing:
		assert.True(t, v)
	case <-ctx.Done():
		t.Fatal("no typing event")
	}

	sent, err := sellerClient.SendMessage(ctx, threadID, "Yes, come by tomorrow")
	require.NoError(t, err)
	notifier.Stop()

	select {
	case m := <-received:
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, "Yes, come by tomorrow", m.Body)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
	assert.Equal(t, 2, cache.Len(threadID))

	threads, err := buyerClient.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, threadID, threads[0].ID)
	assert.Equal(t, int64(1), threads[0].UnreadCount)

	stream.Unsubscribe(threadID)
	require.Eventually(t, func() bool { return a.Hub.ThreadClients(threadID) == 0 },
		5*time.Second, 20*time.Millisecond)
}

func TestMarketplace_ReviewsAndReports(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	a, _ := startApp(t, tdb)
	ctx := context.Background()

	seller := tdb.CreateUser("seller")
	alice := tdb.CreateUser("alice")
	bob := tdb.CreateUser("bob")
	bike := tdb.CreateListing(seller.ID, "Road bike", "Lyon", "250.00")

	_, err := a.Services.Reviews.Create(ctx, alice.ID, reviewapp.CreateReviewRequest{
		RevieweeID: seller.ID.String(), ListingID: bike.ID.String(), Rating: 5, Comment: "Great seller",
	})
	require.NoError(t, err)
	_, err = a.Services.Reviews.Create(ctx, bob.ID, reviewapp.CreateReviewRequest{
		RevieweeID: seller.ID.String(), Rating: 2,
	})
	require.NoError(t, err)

	_, err = a.Services.Reviews.Create(ctx, alice.ID, reviewapp.CreateReviewRequest{
		RevieweeID: seller.ID.String(), ListingID: bike.ID.String(), Rating: 1,
	})
	require.Error(t, err, "one review per reviewer and listing")

	// a listing review must target the seller of that listing
	_, err = a.Services.Reviews.Create(ctx, bob.ID, reviewapp.CreateReviewRequest{
		RevieweeID: alice.ID.String(), ListingID: bike.ID.String(), Rating: 3,
	})
	require.Error(t, err)

	stored, err := persistence.NewGormUserRepository(tdb.DB).FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RatingCount)
	assert.True(t, decimal.RequireFromString("3.5").Equal(stored.RatingAverage), stored.RatingAverage.String())

	page, err := a.Services.Reviews.ListForUser(ctx, seller.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, map[int]int{1: 0, 2: 1, 3: 0, 4: 0, 5: 1}, page.Summary.Histogram)

	rp, err := a.Services.Reports.Create(ctx, alice.ID, reportapp.CreateReportRequest{
		TargetType: "listing", TargetID: bike.ID.String(), Reason: "scam",
	})
	require.NoError(t, err)
	assert.Equal(t, "open", rp.Status)

	_, err = a.Services.Reports.Create(ctx, alice.ID, reportapp.CreateReportRequest{
		TargetType: "listing", TargetID: bike.ID.String(), Reason: "spam",
	})
	require.Error(t, err, "one open report per target")

	_, err = a.Services.Reports.Create(ctx, alice.ID, reportapp.CreateReportRequest{
		TargetType: "user", TargetID: uuid.NewString(), Reason: "spam",
	})
	require.Error(t, err, "unknown target")

	mine, err := a.Services.Reports.ListMine(ctx, alice.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, rp.ID, mine.Items[0].ID)
}

// Command seed fills a development database with fake users, listings,
// favourites, conversations and reviews.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/app"
	favoriteapp "github.com/openground/backend/internal/application/favorite"
	identityapp "github.com/openground/backend/internal/application/identity"
	listingapp "github.com/openground/backend/internal/application/listing"
	messagingapp "github.com/openground/backend/internal/application/messaging"
	reviewapp "github.com/openground/backend/internal/application/review"
	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/openground/backend/internal/infrastructure/logger"
	"github.com/openground/backend/internal/infrastructure/persistence"
)

// DefaultPassword is the password of every seeded account
const DefaultPassword = "openground-dev"

var conditions = []string{"new", "like_new", "good", "fair", "for_parts"}

type options struct {
	users       int
	listings    int
	seed        uint64
	ratingsOnly bool
}

func main() {
	var o options
	flag.IntVar(&o.users, "users", 20, "Number of users to create")
	flag.IntVar(&o.listings, "listings", 4, "Listings per user")
	flag.Uint64Var(&o.seed, "seed", 0, "Random seed (0 picks one)")
	flag.BoolVar(&o.ratingsOnly, "ratings-only", false, "Only recompute every user's rating from their reviews")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	defer func() {
		if err := a.Shutdown(ctx); err != nil {
			log.Error("Shutdown failed", zap.Error(err))
		}
	}()
	if err := a.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	s := &seeder{
		app:    a,
		faker:  gofakeit.New(o.seed),
		users:  persistence.NewGormUserRepository(a.DB.DB),
		log:    log,
		stats:  map[string]int{},
		byUser: map[uuid.UUID][]uuid.UUID{},
	}
	if !o.ratingsOnly {
		if err := s.run(ctx, o); err != nil {
			log.Fatal("Seeding failed", zap.Error(err))
		}
	}
	if err := s.recomputeRatings(ctx); err != nil {
		log.Fatal("Rating recomputation failed", zap.Error(err))
	}

	fields := make([]zap.Field, 0, len(s.stats))
	for k, v := range s.stats {
		fields = append(fields, zap.Int(k, v))
	}
	log.Info("Seed complete", fields...)
}

type seeder struct {
	app    *app.App
	faker  *gofakeit.Faker
	users  identity.UserRepository
	log    *zap.Logger
	stats  map[string]int
	ids    []uuid.UUID
	byUser map[uuid.UUID][]uuid.UUID // seller -> listings
	all    []uuid.UUID
}

func (s *seeder) run(ctx context.Context, o options) error {
	svc := s.app.Services

	for i := range o.users {
		id, err := s.register(ctx, i)
		if err != nil {
			return err
		}
		s.ids = append(s.ids, id)
	}
	if len(s.ids) == 0 {
		return nil
	}

	admin, err := s.users.FindByID(ctx, s.ids[0])
	if err != nil {
		return err
	}
	admin.PromoteToAdmin()
	if err := s.users.Update(ctx, admin); err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	s.log.Info("Admin account", zap.String("username", admin.Username), zap.String("password", DefaultPassword))

	categories := listing.Categories()
	for _, seller := range s.ids {
		for range o.listings {
			resp, err := svc.Listings.Create(ctx, seller, listingapp.CreateListingRequest{
				Title:       truncate(s.faker.ProductName(), 120),
				Description: s.faker.ProductDescription(),
				Price:       decimal.NewFromFloat(s.faker.Price(5, 900)).Round(2),
				Currency:    "EUR",
				Category:    string(categories[s.faker.IntN(len(categories))]),
				City:        s.faker.City(),
				Condition:   conditions[s.faker.IntN(len(conditions))],
			})
			if err != nil {
				return fmt.Errorf("create listing: %w", err)
			}
			s.byUser[seller] = append(s.byUser[seller], resp.ID)
			s.all = append(s.all, resp.ID)
			s.stats["listings"]++
		}
	}

	for _, buyer := range s.ids {
		for range 3 {
			if err := s.favorite(ctx, svc.Favorites, buyer); err != nil {
				return err
			}
		}
		if err := s.converse(ctx, svc.Threads, buyer); err != nil {
			return err
		}
		if err := s.review(ctx, svc.Reviews, buyer); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) register(ctx context.Context, i int) (uuid.UUID, error) {
	first := strings.ToLower(s.faker.FirstName())
	username := truncate(sanitizeUsername(first), 24) + fmt.Sprintf("_%d", i)
	resp, err := s.app.Services.Auth.Register(ctx, identityapp.RegisterRequest{
		Email:       fmt.Sprintf("%s@example.com", username),
		Username:    username,
		Password:    DefaultPassword,
		DisplayName: s.faker.Name(),
		Locale:      "en",
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("register %s: %w", username, err)
	}
	s.stats["users"]++
	return resp.User.ID, nil
}

// otherListing picks a listing not sold by user
func (s *seeder) otherListing(user uuid.UUID) (uuid.UUID, bool) {
	if len(s.all) == len(s.byUser[user]) {
		return uuid.Nil, false
	}
	for {
		id := s.all[s.faker.IntN(len(s.all))]
		if !contains(s.byUser[user], id) {
			return id, true
		}
	}
}

func (s *seeder) favorite(ctx context.Context, favorites *favoriteapp.FavoriteService, buyer uuid.UUID) error {
	id, ok := s.otherListing(buyer)
	if !ok {
		return nil
	}
	resp, err := favorites.Add(ctx, buyer, id)
	if err != nil {
		return fmt.Errorf("favourite: %w", err)
	}
	if resp.Changed {
		s.stats["favorites"]++
	}
	return nil
}

func (s *seeder) converse(ctx context.Context, threads *messagingapp.ThreadService, buyer uuid.UUID) error {
	id, ok := s.otherListing(buyer)
	if !ok {
		return nil
	}
	started, err := threads.StartThread(ctx, buyer, messagingapp.StartThreadRequest{
		ListingID: id.String(),
		Body:      s.faker.Question(),
	})
	if err != nil {
		return fmt.Errorf("start thread: %w", err)
	}
	s.stats["threads"]++

	seller := started.Thread.SellerID
	for n := range s.faker.IntRange(1, 4) {
		sender := seller
		if n%2 == 1 {
			sender = buyer
		}
		if _, err := threads.SendMessage(ctx, sender, started.Thread.ID, messagingapp.SendMessageRequest{
			Body: s.faker.Sentence(s.faker.IntRange(4, 14)),
		}); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		s.stats["messages"]++
	}
	return nil
}

func (s *seeder) review(ctx context.Context, reviews *reviewapp.ReviewService, reviewer uuid.UUID) error {
	id, ok := s.otherListing(reviewer)
	if !ok {
		return nil
	}
	var seller uuid.UUID
	for owner, ids := range s.byUser {
		if contains(ids, id) {
			seller = owner
			break
		}
	}
	_, err := reviews.Create(ctx, reviewer, reviewapp.CreateReviewRequest{
		RevieweeID: seller.String(),
		ListingID:  id.String(),
		Rating:     s.faker.IntRange(review.MinRating+1, review.MaxRating),
		Comment:    s.faker.Sentence(12),
	})
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}
	s.stats["reviews"]++
	return nil
}

// recomputeRatings rebuilds the stored rating of every user from the
// reviews table, e.g. after reviews were imported or edited by hand.
func (s *seeder) recomputeRatings(ctx context.Context) error {
	var ids []uuid.UUID
	if err := s.app.DB.DB.WithContext(ctx).Model(&identity.User{}).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	reviews := persistence.NewGormReviewRepository(s.app.DB.DB)
	for _, id := range ids {
		histogram, err := reviews.Histogram(ctx, id)
		if err != nil {
			return err
		}
		sum := review.Summarize(histogram)
		if err := s.app.Services.Profiles.RecordRating(ctx, id, sum.Average, sum.Count); err != nil {
			return err
		}
	}
	s.stats["ratings"] = len(ids)
	return nil
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return "user"
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

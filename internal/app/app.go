// Package app assembles the OpenGround API from configuration: storage,
// services, the event bus, the realtime hub and the HTTP engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/openground/backend/api"
	favoriteapp "github.com/openground/backend/internal/application/favorite"
	identityapp "github.com/openground/backend/internal/application/identity"
	listingapp "github.com/openground/backend/internal/application/listing"
	messagingapp "github.com/openground/backend/internal/application/messaging"
	reportapp "github.com/openground/backend/internal/application/report"
	reviewapp "github.com/openground/backend/internal/application/review"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/infrastructure/auth"
	"github.com/openground/backend/internal/infrastructure/cache"
	"github.com/openground/backend/internal/infrastructure/config"
	"github.com/openground/backend/internal/infrastructure/event"
	"github.com/openground/backend/internal/infrastructure/logger"
	"github.com/openground/backend/internal/infrastructure/persistence"
	"github.com/openground/backend/internal/infrastructure/realtime"
	"github.com/openground/backend/internal/infrastructure/scheduler"
	"github.com/openground/backend/internal/infrastructure/storage"
	"github.com/openground/backend/internal/infrastructure/telemetry"
	"github.com/openground/backend/internal/interfaces/http/handler"
	"github.com/openground/backend/internal/interfaces/http/middleware"
	"github.com/openground/backend/internal/interfaces/http/router"
)

const (
	healthPath   = "/health"
	livenessPath = "/health/live"
	metricsPath  = "/metrics"
	openAPIPath  = "/openapi.json"

	// ShutdownTimeout bounds the graceful shutdown of the server
	ShutdownTimeout = 30 * time.Second
)

// App is a wired API instance. Start it before serving and Shutdown it after
// the HTTP server has drained.
type App struct {
	Engine   *gin.Engine
	Hub      *realtime.Hub
	Bus      *event.InMemoryEventBus
	DB       *persistence.Database
	Stores   *cache.Stores
	Services *Services

	relay     *event.RedisRelay
	scheduler *scheduler.Scheduler
	trigger   *scheduler.Trigger
	limiters  []*middleware.RateLimiter
	logger    *zap.Logger

	mu          sync.Mutex
	cancelRelay context.CancelFunc
	relayDone   chan struct{}
}

// Services exposes the application services, mostly for tools and tests
// that drive the API without HTTP.
type Services struct {
	Auth      *identityapp.AuthService
	Profiles  *identityapp.ProfileService
	Listings  *listingapp.ListingService
	Photos    *listingapp.PhotoService
	Favorites *favoriteapp.FavoriteService
	Threads   *messagingapp.ThreadService
	Reviews   *reviewapp.ReviewService
	Reports   *reportapp.ReportService
}

// Option customises New
type Option func(*options)

type options struct {
	version string
	meter   metric.Meter
	storage storage.Store
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithMeter records domain metrics on meter
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithStorage overrides the object store chosen from configuration
func WithStorage(s storage.Store) Option {
	return func(o *options) { o.storage = s }
}

// New connects to the configured backends and builds the HTTP engine.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := options{version: "dev", meter: noop.NewMeterProvider().Meter("")}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := persistence.NewDatabase(cfg.Database, log, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DefaultDBTracingConfig(), log); err != nil {
			log.Warn("Database tracing unavailable", zap.Error(err))
		}
	}

	stores, err := cache.NewStores(ctx, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	objects := o.storage
	if objects == nil {
		if objects, err = storage.New(ctx, cfg.Storage, log); err != nil {
			return nil, errors.Join(err, stores.Close(), db.Close())
		}
	}

	a := &App{DB: db, Stores: stores, logger: log}
	if err := a.build(cfg, o, objects); err != nil {
		return nil, errors.Join(err, a.Shutdown(ctx))
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, o options, objects storage.Store) error {
	log := a.logger

	var blacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	if a.Stores.Redis != nil {
		blacklist = auth.NewRedisTokenBlacklist(a.Stores.Redis)
	}
	tokens := auth.NewJWTService(cfg.JWT)

	users := persistence.NewGormUserRepository(a.DB.DB)
	listings := persistence.NewGormListingRepository(a.DB.DB)
	favorites := persistence.NewGormFavoriteRepository(a.DB.DB)
	threads := persistence.NewGormThreadRepository(a.DB.DB)
	messages := persistence.NewGormMessageRepository(a.DB.DB)
	reviews := persistence.NewGormReviewRepository(a.DB.DB)
	reports := persistence.NewGormReportRepository(a.DB.DB)
	targets := persistence.NewGormTargetChecker(a.DB.DB)

	a.Bus = event.NewInMemoryEventBus(log.Named("events"))
	metrics, err := telemetry.NewMarketplaceMetrics(o.meter)
	if err != nil {
		return fmt.Errorf("marketplace metrics: %w", err)
	}
	a.Bus.Subscribe(metrics)

	var httpMetrics *middleware.HTTPMetrics
	hubOpts := []realtime.HubOption{realtime.WithLogger(log.Named("realtime")), realtime.WithObserver(metrics)}
	if cfg.HTTP.MetricsEnabled {
		httpMetrics = middleware.NewHTTPMetrics("openground", healthPath, livenessPath, metricsPath)
		hubOpts = append(hubOpts, realtime.WithObserver(httpMetrics))
	}
	a.Hub = realtime.NewHub(cfg.Realtime, hubOpts...)
	a.Bus.Subscribe(a.Hub)

	if a.Stores.Redis != nil {
		serializer := event.NewEventSerializer()
		event.RegisterAllEvents(serializer)
		a.relay = event.NewRedisRelay(a.Stores.Redis, serializer, a.Hub, log.Named("relay"), a.Hub.EventTypes()...)
		a.Bus.Subscribe(a.relay)
	}

	listingCfg := listingapp.Config{
		ModerationRequired: cfg.Marketplace.ModerationRequired,
		MaxPhotos:          cfg.Marketplace.MaxPhotosPerListing,
		DefaultCurrency:    cfg.Marketplace.DefaultCurrency,
		UploadURLExpiry:    cfg.Storage.PresignExpiration,
	}
	s := &Services{
		Auth:     identityapp.NewAuthService(users, tokens, blacklist, a.Bus, log),
		Profiles: identityapp.NewProfileService(users, blacklist, tokens, a.Bus, log),
		Listings: listingapp.NewListingService(listings, users, favorites, a.Stores.Views, objects, a.Bus, log, listingCfg),
		Photos:   listingapp.NewPhotoService(listings, objects, log, listingCfg),
		Threads:  messagingapp.NewThreadService(threads, messages, listings, users, a.Stores.Typing, a.Bus, log, cfg.Realtime.TypingTTL),
		Reviews:  reviewapp.NewReviewService(reviews, users, listings, a.Bus, log),
		Reports:  reportapp.NewReportService(reports, targets, a.Bus, log),
	}
	s.Favorites = favoriteapp.NewFavoriteService(favorites, listings, s.Listings, a.Bus, log)
	a.Services = s

	if cfg.Scheduler.Enabled {
		if err := a.buildScheduler(cfg.Scheduler, listings); err != nil {
			return err
		}
	}

	docs, err := handler.NewOpenAPIHandler(api.OpenAPI)
	if err != nil {
		return fmt.Errorf("openapi document: %w", err)
	}

	a.Engine = a.engine(cfg, httpMetrics)
	health := handler.NewHealthHandler(o.version).AddCheck("database", a.DB.Ping)
	if a.Stores.Redis != nil {
		health.AddCheck("redis", func(ctx context.Context) error {
			return a.Stores.Redis.Ping(ctx).Err()
		})
	}
	a.Engine.GET(healthPath, health.Health)
	a.Engine.GET(livenessPath, health.Liveness)
	a.Engine.GET(openAPIPath, docs.Serve)
	if httpMetrics != nil {
		a.Engine.GET(metricsPath, httpMetrics.Handler())
	}

	handlers := router.Handlers{
		Auth:      handler.NewAuthHandler(s.Auth),
		Users:     handler.NewUserHandler(s.Profiles),
		Listings:  handler.NewListingHandler(s.Listings, s.Photos),
		Favorites: handler.NewFavoriteHandler(s.Favorites),
		Threads:   handler.NewThreadHandler(s.Threads),
		Stream:    handler.NewStreamHandler(s.Threads, a.Hub, cfg.Realtime.HeartbeatInterval),
		Reviews:   handler.NewReviewHandler(s.Reviews),
		Reports:   handler.NewReportHandler(s.Reports),
	}
	router.NewRouter(a.Engine).Register(router.MarketplaceGroups(handlers, a.guards(cfg, s.Auth))...).Setup()
	return nil
}

// buildScheduler registers the view flush and, for process-local typing
// flags, the typing sweep
func (a *App) buildScheduler(cfg config.SchedulerConfig, views listing.ViewCountWriter) error {
	log := a.logger.Named("scheduler")
	tasks := []scheduler.Task{scheduler.NewViewFlushTask(a.Stores.Views, views, log)}
	intervals := []scheduler.Interval{{Task: scheduler.TaskFlushViews, Every: cfg.ViewFlushInterval}}
	if sweeper, ok := a.Stores.Typing.(scheduler.Sweeper); ok {
		tasks = append(tasks, scheduler.NewTypingSweepTask(sweeper, log))
		intervals = append(intervals, scheduler.Interval{Task: scheduler.TaskSweepTyping, Every: cfg.TypingSweepInterval})
	}

	sched, err := scheduler.NewScheduler(scheduler.Config{
		Workers:       cfg.Workers,
		JobTimeout:    cfg.JobTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, log, tasks...)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	a.scheduler = sched
	a.trigger = scheduler.NewTrigger(sched, log, intervals...)
	return nil
}

// engine applies the global middleware. Order matters: request ids are
// assigned before logging, and recovery wraps everything after it.
func (a *App) engine(cfg *config.Config, httpMetrics *middleware.HTTPMetrics) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		a.logger.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(a.logger))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   []string{healthPath, livenessPath, metricsPath},
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(logger.GinMiddleware(a.logger, healthPath, livenessPath, metricsPath))
	if httpMetrics != nil {
		engine.Use(httpMetrics.Middleware())
	}
	engine.Use(middleware.Profiling(cfg.Profiling.Enabled, healthPath, livenessPath, metricsPath))
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFromHTTP(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Locale())
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		a.limiters = append(a.limiters, limiter)
		engine.Use(middleware.RateLimit(limiter))
	}
	return engine
}

func (a *App) guards(cfg *config.Config, authenticator middleware.Authenticator) router.Guards {
	jwt := func(optional, query bool) gin.HandlerFunc {
		return middleware.JWTAuthWithConfig(middleware.JWTMiddlewareConfig{
			Authenticator:   authenticator,
			Optional:        optional,
			AllowQueryToken: query,
			Logger:          a.logger,
		})
	}
	g := router.Guards{
		Authenticated: jwt(false, false),
		Optional:      jwt(true, false),
		Stream:        jwt(false, true),
		Admin:         middleware.RequireAdmin(),
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.AuthRateLimitRPS, cfg.HTTP.AuthRateLimitBurst)
		a.limiters = append(a.limiters, limiter)
		g.Credentials = middleware.RateLimitByKey(limiter, func(c *gin.Context) string {
			return "auth:" + c.ClientIP()
		})
	}
	return g
}

// Start starts the event bus, the maintenance scheduler and, with Redis,
// the cross-instance relay.
func (a *App) Start(ctx context.Context) error {
	if err := a.Bus.Start(ctx); err != nil {
		return err
	}
	if a.scheduler != nil {
		bg := context.WithoutCancel(ctx)
		if err := a.scheduler.Start(bg); err != nil {
			return err
		}
		if err := a.trigger.Start(bg); err != nil {
			return err
		}
	}
	if a.relay == nil {
		return nil
	}

	relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	a.mu.Lock()
	a.cancelRelay, a.relayDone = cancel, done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := a.relay.Run(relayCtx); err != nil {
			a.logger.Error("Event relay stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops background work and releases connections. Streams are
// closed first so their handlers return before the database goes away.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.Hub != nil {
		a.Hub.Close(ctx)
	}
	a.mu.Lock()
	cancel, done := a.cancelRelay, a.relayDone
	a.cancelRelay = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("event relay: %w", ctx.Err()))
		}
	}
	if a.scheduler != nil {
		errs = append(errs, a.stopScheduler(ctx))
	}
	if a.Bus != nil {
		if err := a.Bus.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
	}
	for _, l := range a.limiters {
		l.Stop()
	}
	if a.Stores != nil {
		errs = append(errs, a.Stores.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// stopScheduler stops the workers and flushes the views counted since the
// last run, while the database is still open
func (a *App) stopScheduler(ctx context.Context) error {
	var errs []error
	if err := a.trigger.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler trigger: %w", err))
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.scheduler.RunNow(ctx, scheduler.TaskFlushViews); err != nil {
		errs = append(errs, fmt.Errorf("final view flush: %w", err))
	}
	return errors.Join(errs...)
}

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/handler"
	"github.com/noah-isme/mops-planner-api/internal/planning"
	"github.com/noah-isme/mops-planner-api/internal/repository"
	"github.com/noah-isme/mops-planner-api/internal/router"
	"github.com/noah-isme/mops-planner-api/internal/service"
	"github.com/noah-isme/mops-planner-api/pkg/cache"
	"github.com/noah-isme/mops-planner-api/pkg/config"
	"github.com/noah-isme/mops-planner-api/pkg/database"
	"github.com/noah-isme/mops-planner-api/pkg/events"
)

// Container holds the wired services shared by the API server and the CLI.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sqlx.DB
	Redis     *redis.Client
	Publisher events.Publisher
	Metrics   *service.MetricsService

	Auth         *service.AuthService
	Planning     *service.PlanningService
	Scheduler    *service.AutoScheduler
	Slots        *service.SlotService
	Shutdowns    *service.ShutdownService
	Templates    *service.TemplateService
	Availability *service.AvailabilityService
	Rebalance    *service.RebalanceService
	Accuracy     *service.AccuracyService
}

// New connects to the backing stores and wires every planning service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Migrations.AutoRun {
		if err := database.RunMigrations(db.DB, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, planning cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	calendar, err := planning.NewWorkCalendar(cfg.Planning.Location(), cfg.Planning.WorkdayStart, cfg.Planning.WorkdayEnd, cfg.Planning.DailyCapacityHours)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("work calendar: %w", err)
	}

	publisher := newPublisher(ctx, cfg.Events, logger)

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Redis:     redisClient,
		Publisher: publisher,
		Metrics:   service.NewMetricsService(),
	}
	c.wire(calendar)
	return c, nil
}

func newPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) events.Publisher {
	if !cfg.Enabled {
		return events.NopPublisher{}
	}
	broker, err := events.NewAMQPPublisher(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		logger.Warn("event broker unavailable, planning events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return events.NewAsyncPublisher(ctx, broker, events.AsyncConfig{}, logger)
}

func (c *Container) wire(calendar planning.WorkCalendar) {
	cfg := c.Config
	validate := validator.New()
	clock := planning.SystemClock{}
	defaultMinutes := int(cfg.Planning.DefaultSlotDuration.Minutes())

	slotRepo := repository.NewPlanningSlotRepository(c.DB)
	workOrderRepo := repository.NewWorkOrderRepository(c.DB)
	technicianRepo := repository.NewTechnicianRepository(c.DB)
	machineRepo := repository.NewMachineRepository(c.DB)
	availabilityRepo := repository.NewAvailabilityRepository(c.DB)
	shutdownRepo := repository.NewShutdownRepository(c.DB)
	templateRepo := repository.NewPlanningTemplateRepository(c.DB)
	locker := repository.NewResourceLocker()

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(c.Redis, c.Logger), c.Metrics, cfg.Cache.TTL, c.Logger, cfg.Cache.Enabled && c.Redis != nil)
	recommender := planning.NewRecommender(calendar, clock)

	c.Auth = service.NewAuthService(c.Logger, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	c.Planning = service.NewPlanningService(slotRepo, workOrderRepo, technicianRepo, availabilityRepo, recommender, cacheSvc, c.Metrics, validate, c.Logger,
		service.PlanningServiceConfig{DefaultDurationMinutes: defaultMinutes})
	c.Scheduler = service.NewAutoScheduler(c.DB, slotRepo, workOrderRepo, technicianRepo, availabilityRepo, locker, recommender, clock, cacheSvc, c.Metrics, c.Publisher, validate, c.Logger,
		service.AutoSchedulerConfig{MaxBatchSize: cfg.Planning.MaxBatchSize, DefaultDurationMinutes: defaultMinutes})
	c.Slots = service.NewSlotService(c.DB, slotRepo, workOrderRepo, technicianRepo, availabilityRepo, locker, recommender, clock, cacheSvc, c.Metrics, c.Publisher, validate, c.Logger,
		service.SlotServiceConfig{ResolveHorizonDays: cfg.Planning.RecommendationDays})
	c.Shutdowns = service.NewShutdownService(c.DB, shutdownRepo, slotRepo, workOrderRepo, technicianRepo, machineRepo, locker, calendar, clock, cacheSvc, c.Metrics, c.Publisher, validate, c.Logger,
		service.ShutdownServiceConfig{DefaultDurationMinutes: defaultMinutes})
	c.Templates = service.NewTemplateService(c.DB, templateRepo, slotRepo, workOrderRepo, locker, calendar, clock, cacheSvc, c.Metrics, c.Publisher, validate, c.Logger)
	c.Availability = service.NewAvailabilityService(c.DB, availabilityRepo, technicianRepo, calendar, cacheSvc, c.Publisher, validate, c.Logger)
	c.Rebalance = service.NewRebalanceService(c.DB, slotRepo, technicianRepo, availabilityRepo, locker, calendar, cacheSvc, c.Metrics, c.Publisher, validate, c.Logger)
	c.Accuracy = service.NewAccuracyService(slotRepo, calendar, cfg.Planning.OnTimeTolerance, cacheSvc, validate, c.Logger)
}

// Router mounts the HTTP API over the wired services.
func (c *Container) Router() http.Handler {
	deps := map[string]handler.Pinger{"postgres": c.DB}
	if c.Redis != nil {
		deps["redis"] = handler.PingFunc(cache.Ping(c.Redis))
	}
	return router.New(router.Options{
		APIPrefix:      c.Config.APIPrefix,
		AllowedOrigins: c.Config.CORS.AllowedOrigins,
		EnableDocs:     c.Config.Env != config.EnvProduction,
		Logger:         c.Logger,
		Metrics:        c.Metrics,
		Auth:           c.Auth,
	}, router.Handlers{
		Planning:     handler.NewPlanningHandler(c.Planning, c.Scheduler, c.Rebalance, c.Accuracy, c.Slots),
		Slots:        handler.NewSlotHandler(c.Slots),
		Shutdowns:    handler.NewShutdownHandler(c.Shutdowns),
		Templates:    handler.NewTemplateHandler(c.Templates),
		Availability: handler.NewAvailabilityHandler(c.Availability),
		System:       handler.NewMetricsHandler(c.Metrics, deps),
	})
}

// Close releases the publisher and the store connections.
func (c *Container) Close() {
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("close event publisher", zap.Error(err))
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/infra/config"
	"github.com/uzswlu/campus-iam/internal/infra/database"
	"github.com/uzswlu/campus-iam/internal/infra/directory"
	kafkainfra "github.com/uzswlu/campus-iam/internal/infra/kafka"
	"github.com/uzswlu/campus-iam/internal/infra/logger"
	redisinfra "github.com/uzswlu/campus-iam/internal/infra/redis"
	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
	postgresrepo "github.com/uzswlu/campus-iam/internal/repository/postgres"
	redisrepo "github.com/uzswlu/campus-iam/internal/repository/redis"
	"github.com/uzswlu/campus-iam/internal/transport/http/routes"
	"github.com/uzswlu/campus-iam/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	reconciler *usecase.ReconcilerService
	providers  port.ProviderRepository
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	locks := redisrepo.NewLockStore(redisClient.Client(), cfg.Redis.LockPrefix)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	metrics := telemetry.NewMetrics()

	mergeService := usecase.NewMergeService(
		repos.Users, repos.Identities, repos.Merges, repos.Audits, eventPublisher, log)
	autoRoleService := usecase.NewAutoRoleService(
		repos.Rules, repos.Roles, eventPublisher, cfg.Sync.DefaultRole, log)
	bootstrapService := usecase.NewBootstrapService(
		repos.Users, repos.Roles, locks, cfg.Sync.FounderRole, log)
	resolverService := usecase.NewResolverService(
		repos.Users, repos.Identities, repos.Providers, repos.Profiles,
		repos.Directory, repos.Audits, eventPublisher,
		mergeService, autoRoleService, bootstrapService,
		usecase.ResolverOptions{
			PlaceholderDomain:      cfg.Sync.PlaceholderDomain,
			UsernameSuffixAttempts: cfg.Sync.UsernameSuffixAttempts,
		}, log)

	var reconcilerService *usecase.ReconcilerService
	if cfg.Directory.BaseURL != "" {
		directoryClient := directory.NewClient(cfg.Directory, log)
		reconcilerService = usecase.NewReconcilerService(
			repos.Providers, repos.Identities, repos.Users, repos.Profiles,
			repos.Directory, directoryClient, repos.Audits, eventPublisher,
			mergeService, resolverService, locks,
			usecase.ReconcilerOptions{
				PageSize:           cfg.Directory.PageSize,
				PageDelay:          cfg.Directory.PageDelay,
				FetchRetries:       cfg.Directory.FetchRetries,
				RecordRetries:      cfg.Sync.RecordRetries,
				RecordRetryBackoff: cfg.Sync.RecordRetryBackoff,
				RunLockTTL:         cfg.Sync.RunLockTTL,
			}, log)
	} else {
		log.Info("directory feed not configured, reconciliation disabled")
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Resolver:   resolverService,
			Merges:     mergeService,
			Reconciler: reconcilerService,
		},
		Repositories: routes.RepositorySet{
			Roles:     repos.Roles,
			Providers: repos.Providers,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		tracer:     tracer,
		reconciler: reconcilerService,
		providers:  repos.Providers,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	if a.cfg.Sync.ScheduleEnabled && a.reconciler != nil {
		go a.runSyncSchedule(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting campus IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// runSyncSchedule triggers one reconciliation pass per directory provider
// once a day at the configured UTC hour.
func (a *Application) runSyncSchedule(ctx context.Context) {
	for {
		wait := untilNextRun(time.Now().UTC(), a.cfg.Sync.DailyHourUTC)
		a.logger.Info("next scheduled reconciliation",
			zap.Duration("in", wait),
			zap.Int("hour_utc", a.cfg.Sync.DailyHourUTC),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		a.runScheduledSync(ctx)
	}
}

func (a *Application) runScheduledSync(ctx context.Context) {
	providers, err := a.providers.ListEnabled(ctx)
	if err != nil {
		a.logger.Error("scheduled sync: list providers", zap.Error(err))
		return
	}

	for _, provider := range providers {
		if provider.DirectoryKind == "" {
			continue
		}

		report, err := a.reconciler.SyncProvider(ctx, provider.Name)
		if err != nil {
			a.logger.Error("scheduled sync failed",
				zap.String("provider", provider.Name),
				zap.Error(err),
			)
			continue
		}

		a.logger.Info("scheduled sync completed",
			zap.String("provider", provider.Name),
			zap.Int("processed", report.Processed),
			zap.Int("created", report.Created),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
			zap.Bool("partial", report.Partial),
		)
	}
}

// untilNextRun returns the wait until the next occurrence of hourUTC,
// always at least a minute away so a restart near the boundary cannot
// double-fire.
func untilNextRun(now time.Time, hourUTC int) time.Duration {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 1
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now.Add(time.Minute)) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

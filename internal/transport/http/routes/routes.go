package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/infra/config"
	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
	"github.com/uzswlu/campus-iam/internal/transport/http/handlers"
	"github.com/uzswlu/campus-iam/internal/transport/http/middleware"
	"github.com/uzswlu/campus-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Resolver   *usecase.ResolverService
	Merges     *usecase.MergeService
	Reconciler *usecase.ReconcilerService
}

// RepositorySet exposes the read-side repositories handlers need directly.
type RepositorySet struct {
	Roles     port.RoleRepository
	Providers port.ProviderRepository
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Metrics      *telemetry.Metrics
	Services     ServiceSet
	Repositories RepositorySet
	Database     DatabaseChecker
	Cache        CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		resolutionHandler := handlers.NewResolutionHandler(
			deps.Services.Resolver, deps.Repositories.Roles, deps.Metrics)
		resolutionHandler.RegisterRoutes(authGroup)

		adminAuth := middleware.RequireAdminToken(deps.Config.App.AdminAPIToken)

		mergeHandler := handlers.NewMergeHandler(
			deps.Services.Merges, deps.Repositories.Providers, deps.Metrics)

		adminGroup := api.Group("/admin")
		adminGroup.Use(adminAuth)
		adminGroup.POST("/merges", mergeHandler.Merge)

		if deps.Services.Reconciler != nil {
			syncHandler := handlers.NewSyncHandler(deps.Services.Reconciler, deps.Metrics, deps.Logger)
			adminGroup.POST("/sync/:provider", syncHandler.Trigger)
		}

		usersGroup := api.Group("/users")
		usersGroup.Use(adminAuth)
		usersGroup.POST("/:id/identities", mergeHandler.LinkIdentity)
	}

	return r
}

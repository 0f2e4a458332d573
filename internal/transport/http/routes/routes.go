// Package routes assembles the Gin engine: middleware, health endpoints,
// metrics, and the query API.
package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/karanb192/reddit-mcp-buddy/internal/infra/config"
	"github.com/karanb192/reddit-mcp-buddy/internal/reddit"
	"github.com/karanb192/reddit-mcp-buddy/internal/transport/http/handlers"
	"github.com/karanb192/reddit-mcp-buddy/internal/transport/http/middleware"
)

// CacheChecker exposes readiness behaviour for shared-store backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuthStatus reports the gateway's credential state for /healthz.
type AuthStatus struct {
	Authenticated func() bool
	Tier          func() string
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Service     *reddit.Service
	HTTPMetrics *middleware.HTTPMetrics
	Auth        AuthStatus
	Redis       CacheChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Auth.Authenticated != nil && deps.Auth.Tier != nil {
		healthOptions = append(healthOptions, handlers.WithAuthStatus(deps.Auth.Authenticated, deps.Auth.Tier))
	}
	if deps.Redis != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Redis.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		redditHandler := handlers.NewRedditHandler(deps.Service)
		redditHandler.RegisterRoutes(api)
	}

	return r
}

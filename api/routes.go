package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/killallgit/sensitive-data-api/api/classify"
	"github.com/killallgit/sensitive-data-api/api/feedback"
	"github.com/killallgit/sensitive-data-api/api/health"
	"github.com/killallgit/sensitive-data-api/api/registry"
	"github.com/killallgit/sensitive-data-api/api/training"
	"github.com/killallgit/sensitive-data-api/api/trainingdata"
	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/api/version"
	_ "github.com/killallgit/sensitive-data-api/docs/swagger"
	"github.com/killallgit/sensitive-data-api/internal/services/auth"
	"github.com/killallgit/sensitive-data-api/pkg/config"
)

// RouteOptions carries the configuration route registration depends on
type RouteOptions struct {
	RateLimiting config.RateLimitConfig
	Monitoring   config.MonitoringConfig
	// Auth, when set, guards every /api/v1 route
	Auth TokenValidator
}

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, opts RouteOptions, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) {
	if deps == nil {
		deps = &types.Dependencies{}
	}

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine)

	if opts.Monitoring.Enabled {
		path := opts.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	docsGroup := engine.Group("/docs")
	docsGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")
	if opts.Auth != nil {
		v1.Use(Authenticate(opts.Auth))
	}

	limit := func(scope string) gin.HandlerFunc {
		rps := endpointLimit(opts.RateLimiting, scope)
		return PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, scope, rps, rps*2)
	}
	group := func(path, scope, permission string) *gin.RouterGroup {
		g := v1.Group(path)
		if opts.RateLimiting.Enabled {
			g.Use(limit(scope))
		}
		if opts.Auth != nil {
			g.Use(RequirePermission(permission))
		}
		return g
	}

	// Classification is the hot path and gets the widest budget
	classify.RegisterRoutes(group("/classify", "classify", auth.PermissionRead), deps)

	feedback.RegisterRoutes(group("/feedback", "feedback", auth.PermissionWrite), deps)
	trainingdata.RegisterRoutes(group("/training-data", "default", auth.PermissionWrite), deps)

	// Training runs are expensive; keep this one tight
	training.RegisterRoutes(group("/training", "training", auth.PermissionAdmin), deps)

	registry.RegisterRoutes(group("/models", "default", auth.PermissionAdmin), deps)
}

// endpointLimit returns the requests per second configured for scope,
// falling back to the "default" entry
func endpointLimit(cfg config.RateLimitConfig, scope string) int {
	if rps, ok := cfg.Endpoints[scope]; ok && rps > 0 {
		return rps
	}
	if rps, ok := cfg.Endpoints["default"]; ok && rps > 0 {
		return rps
	}
	return 20
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  types.StatusError,
			"message": "The requested endpoint was not found",
			"path":    c.Request.URL.Path,
		})
	}
}

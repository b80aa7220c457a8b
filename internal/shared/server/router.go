package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loan-intake/internal/services/health"
	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/metrics"
	"loan-intake/internal/shared/server/middleware"
	"loan-intake/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps holds the handlers served by the API.
type RouterDeps struct {
	Config   config.Config
	Health   *health.Service
	Handlers []RouteRegistrar
	// Limiter is shared across routers in tests; nil builds a fresh one.
	Limiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: middleware.UploadGroup,
			Limiter:  deps.Limiter,
			Rules: map[string]middleware.RateLimitRule{
				middleware.DefaultRateLimitGroup: {
					Rate:  float64(deps.Config.RateLimitPerMinute) / 60.0,
					Burst: deps.Config.RateLimitBurst,
				},
				middleware.UploadRateLimitGroup: {
					Rate:  float64(deps.Config.UploadRatePerMinute) / 60.0,
					Burst: deps.Config.UploadBurst,
				},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		body, ok := deps.Health.Status(c.Request.Context())
		if !ok {
			respond.JSON(c, http.StatusServiceUnavailable, body)
			return
		}
		respond.OK(c, body)
	})
	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/contract-admin/internal/handler/health"
	"github.com/jwalitptl/contract-admin/internal/handler/notification"
	"github.com/jwalitptl/contract-admin/internal/handler/prometheus"
	"github.com/jwalitptl/contract-admin/internal/middleware"
)

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	healthH       *health.Handler
	notificationH *notification.Handler
	metricsH      *prometheus.Handler
	rateLimiter   *middleware.RateLimiter
}

type RouterConfig struct {
	Mode       string
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH *health.Handler,
	notificationH *notification.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		healthH:       healthH,
		notificationH: notificationH,
		metricsH:      metricsH,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		metricsH.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
	)
	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimit > 0 {
		r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.healthH.RegisterRoutes(api)
	api.GET("/metrics", r.metricsH.Handler())

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.rateLimiter != nil {
		protected.Use(r.rateLimiter.RateLimit())
	}

	admin := protected.Group("/admin")
	admin.Use(r.auth.RequireAdmin())

	r.notificationH.RegisterRoutes(protected, admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

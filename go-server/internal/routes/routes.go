package route

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/handler"
	"github.com/fonsecaaso/shortlink/go-server/internal/middleware"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
	"github.com/fonsecaaso/shortlink/go-server/internal/token"
)

const healthTimeout = 2 * time.Second

// Dependencies are the long-lived objects the router is built from.
type Dependencies struct {
	Config      *config.Config
	Store       repository.Store
	Tokens      *token.Manager
	RateLimiter *middleware.RateLimiter
	// OTelMetrics serves the OpenTelemetry Prometheus exporter; nil disables /api/metrics.
	OTelMetrics http.Handler
}

func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	setTrustedProxies(r, cfg.TrustedProxies)
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: !allowsAnyOrigin(origins),
		MaxAge:           12 * time.Hour,
	}))

	resolveService := service.NewResolveService(deps.Store)
	analyticsService := service.NewAnalyticsService(deps.Store, cfg.Location)
	linkService := service.NewLinkService(deps.Store, cfg.Location)
	authService := service.NewAuthService(deps.Store, deps.Tokens)

	redirectHandler := handler.NewRedirectHandler(resolveService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)
	linkHandler := handler.NewLinkHandler(linkService)
	authHandler := handler.NewAuthHandler(authService)

	r.GET("/healthz", healthCheck(deps.Store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.OTelMetrics != nil {
		r.GET("/api/metrics", gin.WrapH(deps.OTelMetrics))
	}

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.OptionalAuth(deps.Tokens), authHandler.Me)

		links := api.Group("/links")
		links.GET("", linkHandler.List)
		links.GET("/codes", linkHandler.Codes)
		links.GET("/:code", linkHandler.Get)
		links.POST("", middleware.AuthMiddleware(deps.Tokens), linkHandler.Create)
		links.POST("/batch", middleware.AuthMiddleware(deps.Tokens), linkHandler.BatchCreate)
		links.DELETE("/:code",
			middleware.ForbidUnauthenticated(deps.Tokens, "Forbidden: please login to delete"),
			linkHandler.Delete,
		)

		api.GET("/analytics/:code", analyticsHandler.Report)
	}

	r.GET("/:code", redirectHandler.Redirect)
	if deps.RateLimiter != nil {
		r.POST("/:code", deps.RateLimiter.Middleware(), redirectHandler.Unlock)
	} else {
		r.POST("/:code", redirectHandler.Unlock)
	}

	return r
}

func healthCheck(store repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			zap.L().Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestLogger() gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// setTrustedProxies limits which peers may set X-Forwarded-For/X-Real-IP.
// With no proxies configured ClientIP is always the socket peer, so the
// password limiter cannot be dodged by rotating forwarding headers.
func setTrustedProxies(r *gin.Engine, proxies []string) {
	if len(proxies) == 0 {
		_ = r.SetTrustedProxies(nil)
		return
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		zap.L().Error("Invalid trusted proxies, trusting none",
			zap.Strings("proxies", proxies),
			zap.Error(err),
		)
		_ = r.SetTrustedProxies(nil)
	}
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

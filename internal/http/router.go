package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/litshare/internal/http/middleware"
	"github.com/smallbiznis/litshare/internal/middleware"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

// Handlers groups the route handlers the router mounts.
type Handlers struct {
	Auth       *handler.AuthHandler
	Literature *handler.LiteratureHandler
	Groups     *handler.GroupHandler
	Admin      *handler.AdminHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, logger *zap.Logger, h Handlers, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(rateLimiter.Handler())
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	bearer := authMiddleware.ValidateJWT

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/token", h.Auth.Token)
			auth.POST("/logout", bearer, h.Auth.Logout)
		}

		user := api.Group("/user", bearer)
		{
			user.GET("/me", h.Auth.Me)
			user.POST("/password", h.Auth.ChangePassword)
		}

		groups := api.Group("/groups", bearer)
		{
			groups.POST("", h.Groups.Create)
			groups.GET("", h.Groups.List)
			groups.POST("/join", h.Groups.Join)
			groups.GET("/:groupId/members", h.Groups.Members)
			groups.DELETE("/:groupId/members/:userId", h.Groups.RemoveMember)
		}
	}

	literature := r.Group("/literature", bearer)
	{
		literature.POST("", h.Literature.Create)
		literature.GET("/group/:groupId", h.Literature.ListActive)
		literature.GET("/deleted/:groupId", h.Literature.ListDeleted)
		literature.GET("/stats/:groupId", h.Literature.GroupStats)
		literature.GET("/:id", h.Literature.Get)
		literature.DELETE("/:id", h.Literature.SoftDelete)
		literature.POST("/:id/restore", h.Literature.Restore)
	}

	admin := r.Group("/admin", bearer, authMiddleware.RequirePlatformAdmin)
	{
		admin.GET("/storage/stats", h.Admin.StorageStats)
		admin.POST("/storage/cleanup", h.Admin.StorageCleanup)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}

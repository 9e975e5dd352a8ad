package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/handler"
	"github.com/noah-isme/scholarship-intake-api/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Applications *handler.ApplicationHandler
	Files        *handler.FileHandler
	Auth         *handler.AuthHandler
	Stats        *handler.StatsHandler
	Metrics      *handler.MetricsHandler
	Admin        *handler.AdminHandler
}

// Options control prefixes and the optional surfaces.
type Options struct {
	APIPrefix    string
	Session      middleware.SessionOptions
	LoginLimiter *middleware.RateLimiter
	EnableDocs   bool
	Logger       *zap.Logger
}

// Register mounts all routes on the engine.
func Register(r *gin.Engine, h Handlers, sessions middleware.SessionValidator, opts Options) {
	gate := middleware.Session(sessions, opts.Session)

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)

	// public intake
	api.POST("/applications", h.Applications.Submit)
	api.POST("/applications/validate", h.Applications.Validate)

	auth := api.Group("/auth")
	{
		login := []gin.HandlerFunc{h.Auth.Login}
		if opts.LoginLimiter != nil {
			login = append([]gin.HandlerFunc{opts.LoginLimiter.Handler()}, login...)
		}
		auth.POST("/login", login...)
		auth.POST("/logout", h.Auth.Logout)
		auth.GET("/me", gate, h.Auth.Me)
	}

	review := api.Group("")
	review.Use(gate)
	{
		review.GET("/applications", h.Applications.List)
		review.GET("/applications/export", h.Applications.Export)
		review.POST("/applications/winner", middleware.Audit(opts.Logger, "application.winner"), h.Applications.Winner)
		review.GET("/applications/:id", h.Applications.Get)
		review.PUT("/applications/:id", middleware.Audit(opts.Logger, "application.status"), h.Applications.UpdateStatus)
		review.DELETE("/applications/:id", middleware.Audit(opts.Logger, "application.delete"), h.Applications.Delete)
		review.GET("/stats", h.Stats.Summary)
	}

	api.GET("/files/:filename", middleware.SessionOrSignedLink(sessions, opts.Session, "token"), h.Files.Serve)

	if h.Admin != nil {
		r.GET("/admin/login", h.Admin.LoginPage)
		r.GET("/admin", gate, h.Admin.Dashboard)
	}
}

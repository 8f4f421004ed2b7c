package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/mops-planner-api/internal/handler"
	"github.com/noah-isme/mops-planner-api/internal/middleware"
	"github.com/noah-isme/mops-planner-api/internal/service"
	"github.com/noah-isme/mops-planner-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mops-planner-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mops-planner-api/pkg/middleware/requestid"
)

// Options configures the engine.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Auth           middleware.TokenValidator
}

// Handlers groups the HTTP handlers mounted by New.
type Handlers struct {
	Planning     *handler.PlanningHandler
	Slots        *handler.SlotHandler
	Shutdowns    *handler.ShutdownHandler
	Templates    *handler.TemplateHandler
	Availability *handler.AvailabilityHandler
	System       *handler.MetricsHandler
}

// New builds the gin engine with the system endpoints and the tenant-scoped planning API.
func New(opts Options, h Handlers) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", h.System.Health)
	r.GET("/ready", h.System.Ready)
	r.GET("/metrics", h.System.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix, middleware.JWT(opts.Auth), middleware.WithResponseMeta())
	planning := api.Group("/planning")
	read := middleware.CanRead()
	write := middleware.CanWrite()

	planning.GET("/calendar", read, h.Planning.Calendar)
	planning.GET("/gantt", read, h.Planning.Gantt)
	planning.GET("/unplanned", read, h.Planning.Unplanned)
	planning.POST("/auto-schedule", write, h.Planning.AutoSchedule)
	planning.POST("/suggest", read, h.Planning.Suggest)
	planning.POST("/rebalance", write, h.Planning.Rebalance)
	planning.GET("/capacity", read, h.Planning.Capacity)
	planning.GET("/conflicts", read, h.Planning.Conflicts)
	planning.POST("/conflicts/:slotId/resolve", write, h.Planning.ResolveConflict)
	planning.GET("/accuracy", read, h.Planning.Accuracy)
	planning.GET("/variances", read, h.Planning.Variances)
	planning.GET("/export", read, h.Planning.Export)

	slots := planning.Group("/slots")
	slots.GET("", read, h.Slots.List)
	slots.POST("", write, h.Slots.Create)
	slots.POST("/bulk", write, h.Slots.BulkCreate)
	slots.PUT("/bulk", write, h.Slots.BulkUpdate)
	slots.GET("/:id", read, h.Slots.Get)
	slots.PUT("/:id", write, h.Slots.Update)
	slots.PATCH("/:id/status", write, h.Slots.UpdateStatus)
	slots.DELETE("/:id", write, h.Slots.Delete)

	shutdowns := planning.Group("/shutdowns")
	shutdowns.GET("", read, h.Shutdowns.List)
	shutdowns.POST("", write, h.Shutdowns.Create)
	shutdowns.GET("/:id", read, h.Shutdowns.Get)
	shutdowns.PUT("/:id", write, h.Shutdowns.Update)
	shutdowns.DELETE("/:id", write, h.Shutdowns.Delete)
	shutdowns.POST("/:id/plan-work", write, h.Shutdowns.PlanWork)
	shutdowns.POST("/:id/start", write, h.Shutdowns.Start)
	shutdowns.POST("/:id/complete", write, h.Shutdowns.Complete)
	shutdowns.POST("/:id/cancel", write, h.Shutdowns.Cancel)

	templates := planning.Group("/templates")
	templates.GET("", read, h.Templates.List)
	templates.POST("", write, h.Templates.Create)
	templates.GET("/:id", read, h.Templates.Get)
	templates.PUT("/:id", write, h.Templates.Update)
	templates.DELETE("/:id", write, h.Templates.Delete)
	templates.POST("/:id/generate", write, h.Templates.Generate)

	availability := planning.Group("/availability")
	availability.GET("", read, h.Availability.List)
	availability.POST("", write, h.Availability.Create)
	availability.GET("/summary", read, h.Availability.Summary)
	availability.POST("/bulk", write, h.Availability.BulkStore)
	availability.GET("/:id", read, h.Availability.Get)
	availability.PUT("/:id", write, h.Availability.Update)
	availability.DELETE("/:id", write, h.Availability.Delete)

	return r
}

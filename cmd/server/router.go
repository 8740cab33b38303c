package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"virtufit-backend/internal/config"
	"virtufit-backend/internal/handlers"
	"virtufit-backend/internal/metrics"
	"virtufit-backend/internal/middleware"
	"virtufit-backend/internal/services"
)

type routerDeps struct {
	service   *services.GenerationService
	collector *metrics.Collector
	cache     handlers.Pinger
	logger    *zap.Logger
}

func setupRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(deps.logger))
	router.Use(middleware.AccessLog(deps.logger))
	router.Use(middleware.Metrics(deps.collector))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check and metrics (no auth)
	healthHandler := handlers.NewHealthHandler(deps.service.ProviderName(), deps.cache)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(deps.collector.Handler()))

	generateHandler := handlers.NewGenerateHandler(deps.service, cfg.MaxUploadBytes, cfg.RequestDeadline())
	taskHandler := handlers.NewTaskHandler(deps.service)
	webhookHandler := handlers.NewWebhookHandler(cfg.WebhookToken, deps.service, deps.logger)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.SessionMiddleware(cfg.AuthJWTSecret))
	api.POST("/generate-model", generateHandler.GenerateModel)
	api.GET("/tasks/:task_id", taskHandler.GetTask)

	// Webhook (no session, uses the shared token)
	router.POST("/api/v1/webhooks/provider", webhookHandler.HandleWebhook)

	return router
}

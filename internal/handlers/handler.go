package handlers

import (
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Command path kept stable for existing callers (home-automation hooks
	// POST here). Body-less; device and mode travel in the path.
	router.POST("/ecobee/:device/:mode", h.authMiddleware, h.setMode)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Event stream (HTTP upgrade) — same port; token travels in the query
	// string because browsers can't set headers on WebSocket handshakes.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		api.GET("/devices", h.getDevices)
		api.GET("/status/:device", h.getStatus)
		api.POST("/temperature/:device/:value", h.setTemperature)
		h.registerLogRoutes(api)
		api.GET("/diagnostics", h.getDiagnostics)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

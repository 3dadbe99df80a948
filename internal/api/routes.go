// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/session"
	"github.com/nb-picture/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store          storage.Store
	Sessions       *session.Manager
	Catalog        *parser.Catalog
	Hub            *Hub
	Stats          StatsSource // nil when the journal is disabled
	DefinitionsDir string
	MaxMessageSize int64
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Widget     WidgetHandler
	Map        MapHandler
	Image      ImageHandler
	Definition DefinitionHandler
	Stats      StatsHandler
	WebSocket  *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.Sessions),
		Widget:     NewWidgetHandler(deps.Sessions, deps.Catalog),
		Map:        NewMapHandler(deps.Sessions),
		Image:      NewImageHandler(deps.Store),
		Definition: NewDefinitionHandler(deps.Catalog, deps.Sessions, deps.DefinitionsDir),
		Stats:      NewStatsHandler(deps.Stats),
		WebSocket:  NewWebSocketHandler(deps.Hub, deps.Sessions, deps.MaxMessageSize),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Definitions
	defGroup := apiGroup.Group("/definitions")
	defGroup.GET("", handlers.Definition.HandleListDefinitions)
	defGroup.POST("", handlers.Definition.HandleUploadDefinition)
	defGroup.GET("/:name", handlers.Definition.HandleGetDefinition)
	defGroup.DELETE("/:name", handlers.Definition.HandleDeleteDefinition)

	// Base images
	imageGroup := apiGroup.Group("/images")
	imageGroup.POST("", handlers.Image.HandleUploadImage)
	imageGroup.GET("", handlers.Image.HandleListImages)
	imageGroup.GET("/raw/*", handlers.Image.HandleServeImage)
	imageGroup.GET("/:id", handlers.Image.HandleGetImage)
	imageGroup.PUT("/:id", handlers.Image.HandleRenameImage)
	imageGroup.DELETE("/:id", handlers.Image.HandleDeleteImage)

	// Widgets
	widgetGroup := apiGroup.Group("/widgets")
	widgetGroup.POST("", handlers.Widget.HandleCreateWidget)
	widgetGroup.GET("", handlers.Widget.HandleListWidgets)
	widgetGroup.GET("/:id", handlers.Widget.HandleGetWidget)
	widgetGroup.GET("/:id/msgpack", handlers.Widget.HandleGetWidgetMsgpack)
	widgetGroup.PUT("/:id", handlers.Widget.HandleUpdateWidget)
	widgetGroup.DELETE("/:id", handlers.Widget.HandleDeleteWidget)
	widgetGroup.POST("/:id/keepalive", handlers.Widget.HandleWidgetKeepAlive)
	widgetGroup.POST("/:id/image/:event", handlers.Widget.HandleImageEvent)
	widgetGroup.POST("/:id/resize", handlers.Widget.HandleResize)
	widgetGroup.POST("/:id/areas/:areaId/:action", handlers.Widget.HandleAreaEvent)

	// Map areas and overlays
	widgetGroup.GET("/:id/areas", handlers.Map.HandleGetAreas)
	widgetGroup.POST("/:id/areas", handlers.Map.HandleCreateArea)
	widgetGroup.GET("/:id/areas/:areaId", handlers.Map.HandleGetArea)
	widgetGroup.PUT("/:id/areas/:areaId", handlers.Map.HandleReplaceArea)
	widgetGroup.DELETE("/:id/areas/:areaId", handlers.Map.HandleDeleteArea)
	widgetGroup.GET("/:id/overlays", handlers.Map.HandleGetOverlays)
	widgetGroup.GET("/:id/overlays/:overlayId", handlers.Map.HandleGetOverlay)
	widgetGroup.POST("/:id/overlays/:overlayId/show", handlers.Map.HandleShowOverlay)
	widgetGroup.POST("/:id/overlays/:overlayId/hide", handlers.Map.HandleHideOverlay)
	widgetGroup.GET("/:id/overlays/:overlayId/highlights", handlers.Map.HandleGetHighlights)
	widgetGroup.PUT("/:id/overlays/:overlayId/highlights", handlers.Map.HandleSetHighlights)
	widgetGroup.GET("/:id/highlights/msgpack", handlers.Map.HandleGetHighlightsMsgpack)

	// Statistics
	widgetGroup.GET("/:id/stats", handlers.Stats.HandleAreaStats)
	apiGroup.GET("/stats/events", handlers.Stats.HandleEventCount)

	// WebSocket event channel
	apiGroup.GET("/ws/widgets/:id", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}

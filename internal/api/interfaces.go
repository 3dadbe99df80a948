// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/nb-picture/backend/internal/journal"
)

// WidgetHandler handles widget lifecycle and interaction operations
type WidgetHandler interface {
	HandleCreateWidget(c echo.Context) error
	HandleListWidgets(c echo.Context) error
	HandleGetWidget(c echo.Context) error
	HandleGetWidgetMsgpack(c echo.Context) error
	HandleUpdateWidget(c echo.Context) error
	HandleDeleteWidget(c echo.Context) error
	HandleWidgetKeepAlive(c echo.Context) error
	HandleImageEvent(c echo.Context) error
	HandleResize(c echo.Context) error
	HandleAreaEvent(c echo.Context) error
}

// MapHandler handles image map areas and overlays of a widget
type MapHandler interface {
	HandleGetAreas(c echo.Context) error
	HandleGetArea(c echo.Context) error
	HandleCreateArea(c echo.Context) error
	HandleReplaceArea(c echo.Context) error
	HandleDeleteArea(c echo.Context) error
	HandleGetOverlays(c echo.Context) error
	HandleGetOverlay(c echo.Context) error
	HandleShowOverlay(c echo.Context) error
	HandleHideOverlay(c echo.Context) error
	HandleGetHighlights(c echo.Context) error
	HandleSetHighlights(c echo.Context) error
	HandleGetHighlightsMsgpack(c echo.Context) error
}

// ImageHandler handles base image storage
type ImageHandler interface {
	HandleUploadImage(c echo.Context) error
	HandleListImages(c echo.Context) error
	HandleGetImage(c echo.Context) error
	HandleServeImage(c echo.Context) error
	HandleDeleteImage(c echo.Context) error
	HandleRenameImage(c echo.Context) error
}

// DefinitionHandler handles widget definitions
type DefinitionHandler interface {
	HandleListDefinitions(c echo.Context) error
	HandleGetDefinition(c echo.Context) error
	HandleUploadDefinition(c echo.Context) error
	HandleDeleteDefinition(c echo.Context) error
}

// StatsHandler handles interaction statistics
type StatsHandler interface {
	HandleAreaStats(c echo.Context) error
	HandleEventCount(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StatsSource answers interaction statistics
// This allows mocking in tests
type StatsSource interface {
	AreaStats(ctx context.Context, pictureID string) ([]journal.AreaStat, error)
	Count(ctx context.Context) (int, error)
}

// handlers_map.go - Image map area and overlay handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nb-picture/backend/internal/geometry"
	"github.com/nb-picture/backend/internal/highlight"
	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/picture"
	"github.com/nb-picture/backend/internal/session"
)

// MapHandlerImpl implements the MapHandler interface
type MapHandlerImpl struct {
	sessions *session.Manager
	registry *picture.Registry
}

// NewMapHandler creates a new map handler instance
func NewMapHandler(sessions *session.Manager) MapHandler {
	return &MapHandlerImpl{
		sessions: sessions,
		registry: sessions.Registry(),
	}
}

// HandleGetAreas returns the areas of a widget's map
func (h *MapHandlerImpl) HandleGetAreas(c echo.Context) error {
	id := c.Param("id")
	areas, ok := h.registry.GetMapAreas(id)
	if !ok {
		return NewNotFoundError("map", id)
	}
	return c.JSON(http.StatusOK, areas)
}

// HandleGetArea returns one area
func (h *MapHandlerImpl) HandleGetArea(c echo.Context) error {
	id, areaID := c.Param("id"), c.Param("areaId")
	area, ok := h.registry.GetMapArea(id, areaID)
	if !ok {
		return NewNotFoundError("area", areaID)
	}
	return c.JSON(http.StatusOK, area)
}

// HandleCreateArea adds an area to a widget's map
func (h *MapHandlerImpl) HandleCreateArea(c echo.Context) error {
	id := c.Param("id")

	var req areaRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	area, ok := h.registry.SetMapArea(id, req.area(""))
	if !ok {
		return NewNotFoundError("map", id)
	}
	h.sessions.TouchWidget(id)
	return c.JSON(http.StatusCreated, area)
}

// HandleReplaceArea replaces an existing area
func (h *MapHandlerImpl) HandleReplaceArea(c echo.Context) error {
	id, areaID := c.Param("id"), c.Param("areaId")

	var req areaRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	if _, ok := h.registry.GetMapArea(id, areaID); !ok {
		return NewNotFoundError("area", areaID)
	}
	area, changed := h.registry.SetMapArea(id, req.area(areaID))
	h.sessions.TouchWidget(id)
	return c.JSON(http.StatusOK, map[string]any{
		"area":    area,
		"changed": changed,
	})
}

// HandleDeleteArea removes an area and every highlight of it
func (h *MapHandlerImpl) HandleDeleteArea(c echo.Context) error {
	id, areaID := c.Param("id"), c.Param("areaId")
	if !h.registry.DeleteMapArea(id, areaID) {
		return NewNotFoundError("area", areaID)
	}
	h.sessions.TouchWidget(id)
	return c.NoContent(http.StatusNoContent)
}

// HandleGetOverlays returns every overlay of a widget's map
func (h *MapHandlerImpl) HandleGetOverlays(c echo.Context) error {
	id := c.Param("id")
	m, ok := h.registry.GetMap(id)
	if !ok {
		return NewNotFoundError("map", id)
	}

	overlays := make([]*models.Overlay, 0, len(m.Overlays))
	for _, overlayID := range h.registry.OverlayIDs(id) {
		if o, ok := m.Overlays[overlayID]; ok {
			overlays = append(overlays, o)
		}
	}
	return c.JSON(http.StatusOK, overlays)
}

// HandleGetOverlay returns one overlay
func (h *MapHandlerImpl) HandleGetOverlay(c echo.Context) error {
	id, overlayID := c.Param("id"), c.Param("overlayId")
	o, ok := h.registry.GetMapOverlay(id, overlayID)
	if !ok {
		return NewNotFoundError("overlay", overlayID)
	}
	return c.JSON(http.StatusOK, o)
}

// HandleShowOverlay makes an overlay visible
func (h *MapHandlerImpl) HandleShowOverlay(c echo.Context) error {
	return h.setShow(c, true)
}

// HandleHideOverlay hides an overlay without touching its highlights
func (h *MapHandlerImpl) HandleHideOverlay(c echo.Context) error {
	return h.setShow(c, false)
}

func (h *MapHandlerImpl) setShow(c echo.Context, show bool) error {
	id, overlayID := c.Param("id"), c.Param("overlayId")
	if _, ok := h.registry.GetMapOverlay(id, overlayID); !ok {
		return NewNotFoundError("overlay", overlayID)
	}

	var changed bool
	if show {
		changed = h.registry.ShowMapOverlay(id, overlayID)
	} else {
		changed = h.registry.HideMapOverlay(id, overlayID)
	}
	h.sessions.TouchWidget(id)
	return c.JSON(http.StatusOK, map[string]bool{"changed": changed, "show": show})
}

// HandleGetHighlights returns the highlighted areas of an overlay with their
// marker positions
func (h *MapHandlerImpl) HandleGetHighlights(c echo.Context) error {
	id, overlayID := c.Param("id"), c.Param("overlayId")
	areas, ok := h.registry.GetMapOverlayAreas(id, overlayID)
	if !ok {
		return NewNotFoundError("overlay", overlayID)
	}

	info, _ := h.sessions.Info(id)
	return c.JSON(http.StatusOK, highlightsResponse{
		Areas:   areas,
		Markers: highlight.Markers(areas, info.Width, info.Height),
	})
}

// HandleSetHighlights replaces the highlighted set of an overlay with the
// named areas
func (h *MapHandlerImpl) HandleSetHighlights(c echo.Context) error {
	id, overlayID := c.Param("id"), c.Param("overlayId")

	var req setHighlightsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if _, ok := h.registry.GetMapOverlay(id, overlayID); !ok {
		return NewNotFoundError("overlay", overlayID)
	}

	areas := make([]models.Area, 0, len(req.AreaIDs))
	for _, areaID := range req.AreaIDs {
		area, ok := h.registry.GetMapArea(id, areaID)
		if !ok {
			return NewNotFoundError("area", areaID)
		}
		areas = append(areas, area)
	}

	changed := h.registry.SetMapOverlayAreas(id, overlayID, areas)
	h.sessions.TouchWidget(id)

	highlighted, _ := h.registry.GetMapOverlayAreas(id, overlayID)
	return c.JSON(http.StatusOK, map[string]any{
		"changed": changed,
		"areaIds": models.AreaIDs(highlighted),
	})
}

// HandleGetHighlightsMsgpack returns the markers of every overlay in MessagePack format
func (h *MapHandlerImpl) HandleGetHighlightsMsgpack(c echo.Context) error {
	id := c.Param("id")
	snapshot, ok := h.sessions.Snapshot(id)
	if !ok || snapshot.Map == nil {
		return NewNotFoundError("map", id)
	}

	data, err := msgpack.Marshal(map[string]any{
		"id":      id,
		"width":   snapshot.Width,
		"height":  snapshot.Height,
		"markers": snapshot.Markers,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// Request and response types

type areaRequest struct {
	Shape     string    `json:"shape"`
	Coords    []float64 `json:"coords"`
	AbsCoords []float64 `json:"$coords"`
	Href      *string   `json:"href"`
	Alt       string    `json:"alt"`
	Title     string    `json:"title"`
	Data      any       `json:"data"`
}

func (r *areaRequest) validate() error {
	if r.Shape == "" {
		return NewValidationError("shape")
	}
	if len(r.Coords) == 0 {
		return NewValidationError("coords")
	}
	return nil
}

func (r *areaRequest) area(id string) models.Area {
	a := models.Area{
		ID:        id,
		Shape:     geometry.ParseShape(r.Shape),
		Coords:    r.Coords,
		AbsCoords: r.AbsCoords,
		Href:      "#",
		Alt:       r.Alt,
		Title:     r.Title,
		Data:      r.Data,
	}
	if r.Href != nil {
		a.Href = *r.Href
	}
	return a
}

type setHighlightsRequest struct {
	AreaIDs []string `json:"areaIds"`
}

type highlightsResponse struct {
	Areas   []models.Area      `json:"areas"`
	Markers []highlight.Marker `json:"markers"`
}

// handlers_widget.go - Widget lifecycle and interaction handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nb-picture/backend/internal/coordinator"
	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/picture"
	"github.com/nb-picture/backend/internal/session"
)

// inlineDefinitionName names widgets created from an inline definition
const inlineDefinitionName = "inline"

// WidgetHandlerImpl implements the WidgetHandler interface
type WidgetHandlerImpl struct {
	sessions *session.Manager
	catalog  *parser.Catalog
}

// NewWidgetHandler creates a new widget handler instance
func NewWidgetHandler(sessions *session.Manager, catalog *parser.Catalog) WidgetHandler {
	return &WidgetHandlerImpl{
		sessions: sessions,
		catalog:  catalog,
	}
}

// HandleCreateWidget starts a widget from a named or inline definition
func (h *WidgetHandlerImpl) HandleCreateWidget(c echo.Context) error {
	var req widgetRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		return NewBadRequestError("invalid mode", err)
	}

	def, err := h.resolve(&req)
	if err != nil {
		return err
	}

	w, err := h.sessions.Create(def, mode)
	if err != nil {
		return widgetError(err, "failed to create widget")
	}

	snapshot, ok := h.sessions.Snapshot(w.ID)
	if !ok {
		return NewNotFoundError("widget", w.ID)
	}
	return c.JSON(http.StatusCreated, snapshot)
}

// HandleListWidgets returns every live widget
func (h *WidgetHandlerImpl) HandleListWidgets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetWidget returns the rendering state of a widget
func (h *WidgetHandlerImpl) HandleGetWidget(c echo.Context) error {
	id := c.Param("id")
	h.sessions.TouchWidget(id)

	snapshot, ok := h.sessions.Snapshot(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// HandleGetWidgetMsgpack returns the rendering state of a widget in MessagePack format
func (h *WidgetHandlerImpl) HandleGetWidgetMsgpack(c echo.Context) error {
	id := c.Param("id")
	h.sessions.TouchWidget(id)

	snapshot, ok := h.sessions.Snapshot(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleUpdateWidget re-runs a widget with a new definition
func (h *WidgetHandlerImpl) HandleUpdateWidget(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.Get(id); !ok {
		return NewNotFoundError("widget", id)
	}

	var req widgetRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	def, err := h.resolve(&req)
	if err != nil {
		return err
	}
	if err := h.sessions.Update(id, def); err != nil {
		return widgetError(err, "failed to update widget")
	}

	snapshot, ok := h.sessions.Snapshot(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// HandleDeleteWidget destroys a widget
func (h *WidgetHandlerImpl) HandleDeleteWidget(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Destroy(id) {
		return NewNotFoundError("widget", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleWidgetKeepAlive marks a widget as used so idle cleanup keeps it
func (h *WidgetHandlerImpl) HandleWidgetKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.TouchWidget(id) {
		return NewNotFoundError("widget", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleImageEvent applies a base image event reported by a client
func (h *WidgetHandlerImpl) HandleImageEvent(c echo.Context) error {
	id := c.Param("id")
	event := c.Param("event")

	var req imageEventRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if _, ok := h.sessions.Info(id); !ok {
		return NewNotFoundError("widget", id)
	}
	if !h.sessions.ImageEvent(id, event, req.Width, req.Height, req.ReadyState) {
		return NewValidationError("event")
	}

	info, _ := h.sessions.Info(id)
	return c.JSON(http.StatusOK, info)
}

// HandleResize records a new rendered size of the base image
func (h *WidgetHandlerImpl) HandleResize(c echo.Context) error {
	id := c.Param("id")

	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	if !h.sessions.Resize(id, req.Width, req.Height) {
		return NewNotFoundError("widget", id)
	}

	info, _ := h.sessions.Info(id)
	return c.JSON(http.StatusOK, info)
}

// HandleAreaEvent applies a click, focus or hover on an area
func (h *WidgetHandlerImpl) HandleAreaEvent(c echo.Context) error {
	id := c.Param("id")
	areaID := c.Param("areaId")

	var req areaEventRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	w, ok := h.sessions.Get(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}

	changed, err := applyAreaEvent(w.Coordinator, c.Param("action"), areaID, req.Blur)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"changed": changed})
}

// applyAreaEvent dispatches an interaction by name
func applyAreaEvent(c *coordinator.Coordinator, action, areaID string, blur bool) (bool, error) {
	switch action {
	case "click":
		return c.ClickArea(areaID), nil
	case "focus":
		return c.FocusArea(areaID, blur), nil
	case "hover":
		return c.HoverArea(areaID, blur), nil
	}
	return false, NewValidationError("action")
}

func (h *WidgetHandlerImpl) resolve(req *widgetRequest) (*parser.Definition, error) {
	if req.Inline != nil {
		def := *req.Inline
		if def.Name == "" {
			def.Name = inlineDefinitionName
		}
		if def.Sources == nil {
			def.Sources = []any{}
		}
		return &def, nil
	}

	def, ok := h.catalog.Get(req.Definition)
	if !ok {
		return nil, NewNotFoundError("definition", req.Definition)
	}
	return def, nil
}

// widgetError maps session and registry errors to API errors
func widgetError(err error, message string) error {
	var invalid *picture.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return NewInvalidInputError(invalid)
	case errors.Is(err, session.ErrInvalidMode):
		return NewBadRequestError("invalid mode", err)
	case errors.Is(err, coordinator.ErrDestroyed):
		return NewConflictError("widget was destroyed")
	}
	return NewInternalError(message, err)
}

// Request types with validation

type widgetRequest struct {
	Definition string             `json:"definition"`
	Inline     *parser.Definition `json:"inline"`
	Mode       string             `json:"mode"`
}

func (r *widgetRequest) validate() error {
	if r.Definition == "" && r.Inline == nil {
		return NewValidationError("definition")
	}
	return nil
}

type imageEventRequest struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ReadyState string `json:"readyState"`
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r *resizeRequest) validate() error {
	if r.Width < 0 {
		return NewValidationError("width")
	}
	if r.Height < 0 {
		return NewValidationError("height")
	}
	return nil
}

type areaEventRequest struct {
	Blur bool `json:"blur"`
}

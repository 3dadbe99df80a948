// handlers_definition.go - Widget definition handlers
package api

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/session"
)

// definition names double as file names
var definitionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// DefinitionHandlerImpl implements the DefinitionHandler interface
type DefinitionHandlerImpl struct {
	catalog  *parser.Catalog
	sessions *session.Manager
	dir      string
}

// NewDefinitionHandler creates a new definition handler instance. Uploaded
// definitions are written to dir when it is set.
func NewDefinitionHandler(catalog *parser.Catalog, sessions *session.Manager, dir string) DefinitionHandler {
	return &DefinitionHandlerImpl{
		catalog:  catalog,
		sessions: sessions,
		dir:      dir,
	}
}

// HandleListDefinitions returns every known definition
func (h *DefinitionHandlerImpl) HandleListDefinitions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

// HandleGetDefinition returns one definition
func (h *DefinitionHandlerImpl) HandleGetDefinition(c echo.Context) error {
	name := c.Param("name")
	def, ok := h.catalog.Get(name)
	if !ok {
		return NewNotFoundError("definition", name)
	}
	return c.JSON(http.StatusOK, def)
}

// HandleUploadDefinition accepts a YAML or JSON definition, validates its
// attributes and re-runs every widget bound to it
func (h *DefinitionHandlerImpl) HandleUploadDefinition(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewValidationError("body")
	}

	def, err := parser.ParseDefinitionFromReader(bytes.NewReader(data))
	if err != nil {
		return NewBadRequestError("invalid definition", err)
	}
	if def.Name == "" {
		def.Name = c.QueryParam("name")
	}
	if !definitionNamePattern.MatchString(def.Name) {
		return NewValidationError("name")
	}
	if err := session.Validate(def); err != nil {
		return widgetError(err, "invalid definition")
	}

	if h.dir != "" {
		path := filepath.Join(h.dir, def.Name+".yaml")
		out, err := yaml.Marshal(def)
		if err != nil {
			return NewInternalError("failed to encode definition", err)
		}
		if err := os.WriteFile(path, out, 0644); err != nil {
			return NewInternalError("failed to save definition", err)
		}
		def.Path = path
	}

	if err := h.catalog.Put(def); err != nil {
		return NewBadRequestError("invalid definition", err)
	}
	reloaded := h.sessions.ReloadDefinition(def, false)
	klog.Infof("[Definitions] stored %q (%d widget(s) reloaded)", def.Name, reloaded)

	return c.JSON(http.StatusCreated, map[string]any{
		"definition": def,
		"reloaded":   reloaded,
	})
}

// HandleDeleteDefinition removes a definition and destroys its widgets
func (h *DefinitionHandlerImpl) HandleDeleteDefinition(c echo.Context) error {
	name := c.Param("name")
	def, ok := h.catalog.Get(name)
	if !ok {
		return NewNotFoundError("definition", name)
	}

	h.catalog.Remove(name)
	if def.Path != "" {
		if err := os.Remove(def.Path); err != nil && !os.IsNotExist(err) {
			return NewInternalError("failed to delete definition file", err)
		}
	}
	h.sessions.ReloadDefinition(def, true)

	return c.NoContent(http.StatusNoContent)
}

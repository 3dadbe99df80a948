// handlers_image.go - Base image storage handlers
package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nb-picture/backend/internal/storage"
)

const defaultImageListLimit = 50

// ImageHandlerImpl implements the ImageHandler interface
type ImageHandlerImpl struct {
	store storage.Store
}

// NewImageHandler creates a new image handler instance
func NewImageHandler(store storage.Store) ImageHandler {
	return &ImageHandlerImpl{store: store}
}

// HandleUploadImage accepts an image either as multipart/form-data or as
// base64 JSON
func (h *ImageHandlerImpl) HandleUploadImage(c echo.Context) error {
	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return NewInternalError("failed to open uploaded file", err)
		}
		defer src.Close()

		info, err := h.store.Save(file.Filename, src)
		if err != nil {
			return imageError(err, "failed to save image")
		}
		return c.JSON(http.StatusCreated, info)
	}

	var req uploadImageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.Save(req.Name, bytes.NewReader(decoded))
	if err != nil {
		return imageError(err, "failed to save image")
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleListImages returns the most recently uploaded images
func (h *ImageHandlerImpl) HandleListImages(c echo.Context) error {
	limit := defaultImageListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	images, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list images", err)
	}
	return c.JSON(http.StatusOK, images)
}

// HandleGetImage returns metadata for a specific image
func (h *ImageHandlerImpl) HandleGetImage(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("image", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleServeImage streams image bytes for a source reference: an id, a
// stored name or a path below the image directory
func (h *ImageHandlerImpl) HandleServeImage(c echo.Context) error {
	ref := c.Param("*")
	rc, err := h.store.Open(ref)
	if err != nil {
		return NewNotFoundError("image", ref)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

// HandleDeleteImage removes an image from storage
func (h *ImageHandlerImpl) HandleDeleteImage(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("image", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameImage updates the display name of an image
func (h *ImageHandlerImpl) HandleRenameImage(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameImageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("image", id)
	}
	return c.JSON(http.StatusOK, info)
}

func imageError(err error, message string) error {
	if errors.Is(err, storage.ErrInvalidImage) {
		return NewBadRequestError("not a supported image", err)
	}
	return NewInternalError(message, err)
}

// Request types

type uploadImageRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadImageRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameImageRequest struct {
	Name string `json:"name"`
}

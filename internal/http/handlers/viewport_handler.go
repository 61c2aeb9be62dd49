// README: Viewport handlers: camera updates and on-demand frames.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkmark/internal/viewport"
)

type Camera interface {
	SetCamera(u viewport.CameraUpdate) error
	Camera() viewport.CameraState
	Decorate() viewport.Frame
}

type ViewportHandler struct {
	camera Camera
}

func NewViewportHandler(cam Camera) *ViewportHandler {
	return &ViewportHandler{camera: cam}
}

func (h *ViewportHandler) Update(c *gin.Context) {
	var req viewport.CameraUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.camera.SetCamera(req); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.camera.Camera())
}

func (h *ViewportHandler) Frame(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.camera.Decorate())
}

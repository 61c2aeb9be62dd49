// README: Marker handlers: pointer clicks, manual markers and the show/hide toggle.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parkmark/internal/icons"
	"parkmark/internal/modules/marker"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

// MarkerView is the viewport as seen by marker handlers.
type MarkerView interface {
	viewport.View
	GeoToModel(ctx context.Context, lon, lat, height float64) (types.Point3D, error)
}

type Visibility interface {
	SetVisible(visible bool)
	Visible() bool
}

type MarkerHandler struct {
	view       MarkerView
	decorator  *marker.Decorator
	visibility Visibility
	icons      *icons.Repository
	pinIcon    string
}

func NewMarkerHandler(view MarkerView, d *marker.Decorator, vis Visibility, repo *icons.Repository, pinIcon string) *MarkerHandler {
	return &MarkerHandler{view: view, decorator: d, visibility: vis, icons: repo, pinIcon: pinIcon}
}

type clickReq struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (h *MarkerHandler) Click(c *gin.Context) {
	var req clickReq
	if err := c.ShouldBindJSON(&req); err != nil || req.X == nil || req.Y == nil {
		writeError(c, http.StatusBadRequest, "x and y are required")
		return
	}
	writeJSON(c, http.StatusOK, h.decorator.Click(h.view, *req.X, *req.Y))
}

type manualReq struct {
	Longitude   *float64 `json:"longitude"`
	Latitude    *float64 `json:"latitude"`
	Height      float64  `json:"height"`
	Icon        string   `json:"icon"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

type manualResp struct {
	Index       int           `json:"index"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Point       types.Point3D `json:"point"`
}

func (h *MarkerHandler) AddManual(c *gin.Context) {
	var req manualReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Longitude == nil || req.Latitude == nil {
		writeError(c, http.StatusBadRequest, "longitude and latitude are required")
		return
	}
	name := req.Icon
	if name == "" {
		name = h.pinIcon
	}
	icon, ok := h.icons.Get(name)
	if !ok {
		writeError(c, http.StatusServiceUnavailable, "icon unavailable: "+name)
		return
	}
	point, err := h.view.GeoToModel(c.Request.Context(), *req.Longitude, *req.Latitude, req.Height)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	var opts []marker.ManualOption
	if req.Title != "" {
		opts = append(opts, marker.WithTitle(req.Title))
	}
	if req.Description != "" {
		opts = append(opts, marker.WithDescription(req.Description))
	}
	pin := h.decorator.AddManualMarker(marker.Record{Point: point}, icon, opts...)
	writeJSON(c, http.StatusCreated, manualResp{
		Index:       len(h.decorator.ManualPins()) - 1,
		Title:       pin.Title(),
		Description: pin.Description(),
		Point:       point,
	})
}

func (h *MarkerHandler) ClearManual(c *gin.Context) {
	h.decorator.ClearManual()
	c.Status(http.StatusNoContent)
}

func (h *MarkerHandler) RemoveManual(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid index")
		return
	}
	if err := h.decorator.RemoveManual(idx); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type visibleReq struct {
	Visible *bool `json:"visible"`
}

func (h *MarkerHandler) SetVisible(c *gin.Context) {
	var req visibleReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		writeError(c, http.StatusBadRequest, "visible is required")
		return
	}
	h.visibility.SetVisible(*req.Visible)
	writeJSON(c, http.StatusOK, gin.H{"visible": h.visibility.Visible()})
}

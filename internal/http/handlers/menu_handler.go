// README: Popup menu handlers: pick an entry, close the menu.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Menus interface {
	Pick(ctx context.Context, id string, index int) error
	Close() bool
}

type MenuHandler struct {
	menus Menus
}

func NewMenuHandler(m Menus) *MenuHandler {
	return &MenuHandler{menus: m}
}

type pickReq struct {
	Index *int `json:"index"`
}

func (h *MenuHandler) Pick(c *gin.Context) {
	var req pickReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Index == nil {
		writeError(c, http.StatusBadRequest, "index is required")
		return
	}
	if err := h.menus.Pick(c.Request.Context(), c.Param("id"), *req.Index); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MenuHandler) Close(c *gin.Context) {
	if !h.menus.Close() {
		writeError(c, http.StatusNotFound, "no active menu")
		return
	}
	c.Status(http.StatusNoContent)
}

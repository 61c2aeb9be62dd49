// README: Lot handlers: marker records, spot occupy/release and the info view.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"parkmark/internal/http/middleware"
	"parkmark/internal/logging"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/spot"
	"parkmark/internal/service"
	"parkmark/internal/types"
)

type LotWidget interface {
	Records() []marker.Record
	Record(id types.ID) (marker.Record, bool)
	Occupy(ctx context.Context, id types.ID) (spot.Spot, error)
	Release(ctx context.Context, id types.ID) (spot.ReleaseResult, error)
	Info(ctx context.Context, id types.ID) (service.Info, error)
}

type LotHandler struct {
	widget LotWidget
}

func NewLotHandler(w LotWidget) *LotHandler {
	return &LotHandler{widget: w}
}

func (h *LotHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"lots": h.widget.Records()})
}

func (h *LotHandler) Get(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	rec, found := h.widget.Record(id)
	if !found {
		writeError(c, http.StatusNotFound, "parking lot not found")
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (h *LotHandler) Occupy(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	sp, err := h.widget.Occupy(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	logging.Ctx(c.Request.Context()).Info().Str("lot_id", string(id)).Str("label", sp.Label).Str("uid", middleware.CallerUID(c)).Msg("spot occupied")
	writeJSON(c, http.StatusCreated, sp)
}

func (h *LotHandler) Release(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	res, err := h.widget.Release(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *LotHandler) Info(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	info, err := h.widget.Info(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func lotID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid lot id")
		return "", false
	}
	return types.ID(id), true
}

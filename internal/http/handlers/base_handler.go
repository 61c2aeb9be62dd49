// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parkmark/internal/icons"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/popup"
	"parkmark/internal/modules/spot"
	"parkmark/internal/viewport"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the lot id shapes the store issues: alphanumerics plus
// '-' and '_', at most 64 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps the sentinel errors of every module onto a status.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lot.ErrBadRequest), errors.Is(err, viewport.ErrBadCamera), errors.Is(err, popup.ErrBadEntry):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, lot.ErrNotFound), errors.Is(err, marker.ErrNoSuchMarker), errors.Is(err, popup.ErrNoActiveMenu):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, spot.ErrNoAvailableSpot), errors.Is(err, spot.ErrConflict), errors.Is(err, popup.ErrStaleMenu):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, spot.ErrLockUnavailable), errors.Is(err, viewport.ErrViewportUnavailable), errors.Is(err, icons.ErrIconLoadFailed):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, spot.ErrStoreQueryFailed), errors.Is(err, spot.ErrStoreWriteFailed), errors.Is(err, marker.ErrStoreQueryFailed):
		writeError(c, http.StatusBadGateway, "store unavailable")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parkmark/internal/http/handlers"
	"parkmark/internal/http/middleware"
	"parkmark/internal/icons"
	"parkmark/internal/infra"
	"parkmark/internal/modules/marker"
)

type RouterDeps struct {
	Widget interface {
		handlers.LotWidget
		handlers.Visibility
	}
	View      handlers.MarkerView
	Camera    handlers.Camera
	Decorator *marker.Decorator
	Menus     handlers.Menus
	Icons     *icons.Repository
	PinIcon   string
	// AssetsDir is served under /assets when set.
	AssetsDir string
	Websocket http.Handler
	// Verifier guards the mutating routes; nil leaves them open.
	Verifier infra.TokenVerifier
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.AssetsDir != "" {
		r.Static("/assets", deps.AssetsDir)
	}
	if deps.Websocket != nil {
		r.GET("/ws", gin.WrapH(deps.Websocket))
	}

	api := r.Group("/api")
	guarded := api.Group("")
	if deps.Verifier != nil {
		guarded.Use(middleware.Auth(deps.Verifier))
	}

	lotHandler := handlers.NewLotHandler(deps.Widget)
	api.GET("/lots", lotHandler.List)
	api.GET("/lots/:id", lotHandler.Get)
	api.GET("/lots/:id/info", lotHandler.Info)
	guarded.POST("/lots/:id/occupy", lotHandler.Occupy)
	guarded.POST("/lots/:id/release", lotHandler.Release)

	viewportHandler := handlers.NewViewportHandler(deps.Camera)
	api.PUT("/viewport", viewportHandler.Update)
	api.GET("/frame", viewportHandler.Frame)

	markerHandler := handlers.NewMarkerHandler(deps.View, deps.Decorator, deps.Widget, deps.Icons, deps.PinIcon)
	api.POST("/markers/click", markerHandler.Click)
	api.PUT("/markers/visible", markerHandler.SetVisible)
	api.POST("/markers/manual", markerHandler.AddManual)
	api.DELETE("/markers/manual", markerHandler.ClearManual)
	api.DELETE("/markers/manual/:index", markerHandler.RemoveManual)

	menuHandler := handlers.NewMenuHandler(deps.Menus)
	guarded.POST("/menu/:id/pick", menuHandler.Pick)
	api.DELETE("/menu", menuHandler.Close)

	return r
}

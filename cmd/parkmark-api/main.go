// README: Entry point; loads config, wires the marker pipeline and runs the change feed, frame loop, websocket hub and HTTP server under one supervisor.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"parkmark/internal/config"
	httptransport "parkmark/internal/http"
	"parkmark/internal/icons"
	"parkmark/internal/infra"
	"parkmark/internal/logging"
	"parkmark/internal/maps"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/popup"
	"parkmark/internal/modules/spot"
	"parkmark/internal/realtime"
	"parkmark/internal/service"
	"parkmark/internal/supervisor"
	"parkmark/internal/viewport"
	"parkmark/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("load config")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("parkmark-api exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	if verifier == nil {
		logging.Warn().Msg("firebase project not configured, mutating routes are unauthenticated")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if cfg.DB.Migrate {
		if err := infra.ApplyMigrations(ctx, dbPool, cfg.DB.MigrationsDir); err != nil {
			return err
		}
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	var locker spot.Locker = spot.NewLocalLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = spot.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
	}

	geocoder, err := maps.NewGeocoder(cfg.Maps.APIKey)
	if err != nil {
		return err
	}

	iconRepo := icons.Load(ctx, icons.NewLoader(cfg.Icons.BaseURL), cfg.Icons.Names)

	lotSvc := lot.NewService(lot.NewStore(dbPool))
	spotSvc := spot.NewService(spot.NewStore(dbPool), locker, spot.Options{
		JitterDeg:   cfg.Spot.JitterDeg,
		MaxAttempts: cfg.Spot.MaxAllocateAttempts,
	})

	view := viewport.New(viewport.NewProjector(), viewport.Options{
		CenterLon:      cfg.Viewport.CenterLon,
		CenterLat:      cfg.Viewport.CenterLat,
		MetersPerPixel: cfg.Viewport.MetersPerPixel,
		Width:          cfg.Viewport.Width,
		Height:         cfg.Viewport.Height,
		Spatial:        cfg.Viewport.Spatial,
		FrameInterval:  cfg.Marker.FrameInterval,
	})
	menus := popup.NewController()
	decorator := marker.NewDecorator(view, menus, marker.Options{
		MinimumClusterSize: cfg.Marker.MinimumClusterSize,
		ClusterRadiusPx:    cfg.Marker.ClusterRadiusPx,
		PinHeightPx:        cfg.Marker.PinHeightPx,
	})
	feed := realtime.NewPGFeed(dbPool)
	adapter := marker.NewAdapter(lotSvc, view)
	defer adapter.Close()

	hub := ws.NewHub()
	view.Subscribe(func(f viewport.Frame) { hub.Broadcast(ws.MessageTypeFrame, f) })
	menus.Subscribe(func(e popup.MenuEvent) { hub.Broadcast(ws.MessageTypeMenu, e) })

	deps := service.Deps{
		Host:      view,
		Decorator: decorator,
		Adapter:   adapter,
		Feed:      feed,
		Lots:      lotSvc,
		Spots:     spotSvc,
		Icons:     iconRepo,
		PinIcon:   cfg.Marker.PinIcon,
		Notices:   hub,
	}
	if geocoder != nil {
		deps.Geocoder = geocoder
	}
	widget := service.NewParkingWidget(deps)
	if err := widget.Mount(ctx); err != nil {
		// change events and the feed's resync keep trying
		logging.Warn().Err(err).Msg("starting without initial markers")
	}
	defer widget.Unmount()

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Widget:    widget,
		View:      view,
		Camera:    view,
		Decorator: decorator,
		Menus:     menus,
		Icons:     iconRepo,
		PinIcon:   cfg.Marker.PinIcon,
		AssetsDir: assetsDir(cfg.Icons.BaseURL),
		Websocket: hub,
		Verifier:  verifier,
	})

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddDataService(feed)
	tree.AddRenderService(view)
	tree.AddRenderService(hub)
	tree.AddAPIService(supervisor.NewHTTPServerService(httptransport.NewServer(cfg.HTTP.Addr, router), 0))

	logging.Info().Str("addr", cfg.HTTP.Addr).Int("icons", len(iconRepo.All())).Msg("parkmark-api starting")
	return tree.Serve(ctx)
}

// assetsDir is the local icon directory to serve, or "" when icons are remote.
func assetsDir(base string) string {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return ""
	}
	return filepath.Clean(base)
}

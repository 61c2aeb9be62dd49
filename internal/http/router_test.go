package http_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "parkmark/internal/http"
	"parkmark/internal/icons"
	"parkmark/internal/infra"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/popup"
	"parkmark/internal/modules/spot"
	"parkmark/internal/service"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

const (
	centerLon = 121.5375
	centerLat = 25.0173
)

type fakeWidget struct {
	records   []marker.Record
	occupyErr error
	visible   bool
	occupied  []types.ID
}

func (f *fakeWidget) Records() []marker.Record { return f.records }

func (f *fakeWidget) Record(id types.ID) (marker.Record, bool) {
	for _, r := range f.records {
		if r.ID == id {
			return r, true
		}
	}
	return marker.Record{}, false
}

func (f *fakeWidget) Occupy(ctx context.Context, id types.ID) (spot.Spot, error) {
	if f.occupyErr != nil {
		return spot.Spot{}, f.occupyErr
	}
	if _, ok := f.Record(id); !ok {
		return spot.Spot{}, lot.ErrNotFound
	}
	f.occupied = append(f.occupied, id)
	return spot.Spot{Label: "A01", LotID: id, Status: spot.StatusOccupied}, nil
}

func (f *fakeWidget) Release(ctx context.Context, id types.ID) (spot.ReleaseResult, error) {
	return spot.ReleaseResult{}, nil
}

func (f *fakeWidget) Info(ctx context.Context, id types.ID) (service.Info, error) {
	rec, ok := f.Record(id)
	if !ok {
		return service.Info{}, lot.ErrNotFound
	}
	return service.Info{Lot: rec.Lot(), Title: rec.Title(), Detail: rec.Description()}, nil
}

func (f *fakeWidget) SetVisible(v bool) { f.visible = v }
func (f *fakeWidget) Visible() bool     { return f.visible }

type stubVerifier struct {
	err error
}

func (s stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &infra.FirebaseToken{UID: "operator7", Claims: map[string]interface{}{"role": "operator"}}, nil
}

type svgLoader struct{}

func (svgLoader) Fetch(ctx context.Context, name string) ([]byte, string, error) {
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="24" height="36"></svg>`), "/assets/" + name, nil
}

type env struct {
	router *gin.Engine
	widget *fakeWidget
	view   *viewport.Viewport
	dec    *marker.Decorator
	menus  *popup.Controller
}

func newEnv(t *testing.T, verifier infra.TokenVerifier) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	view := viewport.New(viewport.NewProjector(), viewport.Options{
		CenterLon: centerLon, CenterLat: centerLat, MetersPerPixel: 1, Width: 1280, Height: 720, Spatial: true,
	})
	menus := popup.NewController()
	dec := marker.NewDecorator(view, menus, marker.DefaultOptions())
	view.AddDecorator(dec)
	repo := icons.Load(context.Background(), svgLoader{}, []string{"pin_google_maps.svg"})

	point, err := view.GeoToModel(context.Background(), centerLon, centerLat, 0)
	require.NoError(t, err)
	w := &fakeWidget{visible: true, records: []marker.Record{
		{ID: "lotA", Label: "A", Capacity: 3, Available: 2, Longitude: centerLon, Latitude: centerLat, Point: point},
	}}
	icon, _ := repo.Get("pin_google_maps.svg")
	dec.SetMarkersData(w.records, icon, nil)

	r := httptransport.NewRouter(httptransport.RouterDeps{
		Widget: w, View: view, Camera: view, Decorator: dec, Menus: menus,
		Icons: repo, PinIcon: "pin_google_maps.svg", Verifier: verifier,
	})
	return &env{router: r, widget: w, view: view, dec: dec, menus: menus}
}

func (e *env) do(method, path string, body any, auth string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/health", nil, "").Code)
	w := e.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parkmark_")
}

func TestLotRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodGet, "/api/lots", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Lots []marker.Record `json:"lots"`
	}
	decode(t, w, &list)
	require.Len(t, list.Lots, 1)
	assert.Equal(t, "A", list.Lots[0].Label)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/lots/lotA", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/lots/nope", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/lots/bad%20id", nil, "").Code)

	w = e.do(http.MethodGet, "/api/lots/lotA/info", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var info service.Info
	decode(t, w, &info)
	assert.Equal(t, "2 of 3 spots available", info.Detail)
}

func TestOccupyErrorMapping(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	e.widget.occupyErr = spot.ErrNoAvailableSpot
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "").Code)

	e.widget.occupyErr = errors.Join(spot.ErrStoreWriteFailed, errors.New("connection reset"))
	w = e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	e.widget.occupyErr = spot.ErrLockUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "").Code)
}

func TestMutatingRoutesRequireTokenWhenConfigured(t *testing.T) {
	e := newEnv(t, stubVerifier{})
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "").Code)
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/lots/lotA/occupy", nil, "Bearer good").Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/lots", nil, "").Code)

	bad := newEnv(t, stubVerifier{err: errors.New("expired")})
	assert.Equal(t, http.StatusUnauthorized, bad.do(http.MethodPost, "/api/lots/lotA/release", nil, "Bearer x").Code)
}

func TestClickOpensMenuAndPickRuns(t *testing.T) {
	e := newEnv(t, nil)
	var picked []marker.Action
	e.dec.SetActionHandler(func(ctx context.Context, a marker.Action) error {
		picked = append(picked, a)
		return nil
	})

	frame := e.view.Decorate()
	require.Len(t, frame.Decorations, 1)
	b := frame.Decorations[0].Bounds
	w := e.do(http.MethodPost, "/api/markers/click", map[string]float64{"x": b.Left + b.Width/2, "y": b.Top + b.Height/2}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res marker.ClickResult
	decode(t, w, &res)
	require.True(t, res.Handled)
	require.NotNil(t, res.Menu)
	assert.Len(t, res.Menu.Labels, 5)

	w = e.do(http.MethodPost, "/api/menu/"+res.Menu.ID+"/pick", map[string]int{"index": 4}, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, picked, 1)
	assert.Equal(t, marker.ActionReleaseSpot, picked[0].Kind)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/menu/"+res.Menu.ID+"/pick", map[string]int{"index": 0}, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/menu", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/markers/click", map[string]float64{"x": 1}, "").Code)
}

func TestStaleMenuPick(t *testing.T) {
	e := newEnv(t, nil)
	first := e.menus.Show(0, 0, []popup.Entry{{Label: "a"}})
	e.menus.Show(0, 0, []popup.Entry{{Label: "b"}})
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/menu/"+first.ID+"/pick", map[string]int{"index": 0}, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/menu", nil, "").Code)
}

func TestManualMarkerRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodPost, "/api/markers/manual", map[string]float64{"longitude": centerLon + 0.002, "latitude": centerLat}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Index       int    `json:"index"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	decode(t, w, &created)
	assert.Equal(t, 0, created.Index)
	assert.Equal(t, "Manual", created.Title)
	assert.Equal(t, "description test goes here", created.Description)
	assert.Len(t, e.view.Decorate().Decorations, 2)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/markers/manual/5", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/markers/manual/0", nil, "").Code)
	assert.Len(t, e.view.Decorate().Decorations, 1)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/markers/manual", map[string]float64{"longitude": 1}, "").Code)

	e.view.Detach()
	w = e.do(http.MethodPost, "/api/markers/manual", map[string]float64{"longitude": centerLon, "latitude": centerLat}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestViewportAndVisibilityRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodPut, "/api/viewport", map[string]float64{"meters_per_pixel": 2}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, e.view.Camera().MetersPerPixel)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/viewport", map[string]float64{"center_lon": 1}, "").Code)

	w = e.do(http.MethodGet, "/api/frame", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var frame viewport.Frame
	decode(t, w, &frame)
	assert.Len(t, frame.Decorations, 1)

	w = e.do(http.MethodPut, "/api/markers/visible", map[string]bool{"visible": false}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, e.widget.visible)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, "/api/markers/visible", map[string]string{}, "").Code)
}

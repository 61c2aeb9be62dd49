package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkmark/internal/icons"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/popup"
	"parkmark/internal/modules/spot"
	"parkmark/internal/realtime"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

const (
	centerLon = 121.5375
	centerLat = 25.0173
)

type memLots struct {
	mu   sync.Mutex
	lots map[types.ID]lot.Lot
	err  error
}

func (m *memLots) List(ctx context.Context) ([]lot.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var rows []lot.Row
	for _, l := range m.lots {
		capacity, available, lon, lat := l.Capacity, l.Available, l.Longitude, l.Latitude
		rows = append(rows, lot.Row{ID: string(l.ID), Label: l.Label, Capacity: &capacity, Available: &available, Longitude: &lon, Latitude: &lat})
	}
	return rows, nil
}

func (m *memLots) Get(ctx context.Context, id types.ID) (lot.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	if !ok {
		return lot.Lot{}, lot.ErrNotFound
	}
	return l, nil
}

type fakeSpots struct {
	occupyErr error
	occupied  []types.ID
	released  []types.ID
}

func (f *fakeSpots) Occupy(ctx context.Context, l lot.Lot) (spot.Spot, error) {
	if f.occupyErr != nil {
		return spot.Spot{}, f.occupyErr
	}
	f.occupied = append(f.occupied, l.ID)
	return spot.Spot{ID: "s1", Label: "A01", LotID: l.ID, Status: spot.StatusOccupied}, nil
}

func (f *fakeSpots) Release(ctx context.Context, l lot.Lot) (spot.ReleaseResult, error) {
	f.released = append(f.released, l.ID)
	if len(f.occupied) == 0 {
		return spot.ReleaseResult{}, nil
	}
	return spot.ReleaseResult{Released: true, Spot: &spot.Spot{Label: "A01", LotID: l.ID}}, nil
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Broadcast(msgType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msgType == MsgNotice {
		r.notices = append(r.notices, data.(Notice))
	}
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

type staticGeocoder string

func (g staticGeocoder) Address(ctx context.Context, lat, lng float64) (string, error) {
	return string(g), nil
}

type svgLoader struct{}

func (svgLoader) Fetch(ctx context.Context, name string) ([]byte, string, error) {
	if name == "missing.svg" {
		return nil, "", errors.New("not found")
	}
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="24" height="36"></svg>`), "/assets/" + name, nil
}

type fixture struct {
	widget  *ParkingWidget
	view    *viewport.Viewport
	dec     *marker.Decorator
	hub     *realtime.Hub
	lots    *memLots
	spots   *fakeSpots
	notices *noticeRecorder
}

func newFixture(t *testing.T, pinIcon string) *fixture {
	t.Helper()
	view := viewport.New(viewport.NewProjector(), viewport.Options{
		CenterLon: centerLon, CenterLat: centerLat, MetersPerPixel: 1, Width: 1280, Height: 720, Spatial: true,
	})
	lots := &memLots{lots: map[types.ID]lot.Lot{}}
	for i, label := range []string{"A", "B", "C"} {
		id := types.ID(fmt.Sprint(i + 1))
		lots.lots[id] = lot.Lot{ID: id, Label: label, Capacity: 3, Available: 3,
			Longitude: centerLon + float64(i)*0.001, Latitude: centerLat}
	}
	dec := marker.NewDecorator(view, popup.NewController(), marker.DefaultOptions())
	f := &fixture{
		view: view, dec: dec, hub: realtime.NewHub(), lots: lots,
		spots: &fakeSpots{}, notices: &noticeRecorder{},
	}
	f.widget = NewParkingWidget(Deps{
		Host:      view,
		Decorator: dec,
		Adapter:   marker.NewAdapter(lots, view),
		Feed:      f.hub,
		Lots:      lots,
		Spots:     f.spots,
		Icons:     icons.Load(context.Background(), svgLoader{}, []string{"pin_google_maps.svg", "missing.svg"}),
		PinIcon:   pinIcon,
		Geocoder:  staticGeocoder("Roosevelt Rd, Taipei"),
		Notices:   f.notices,
	})
	return f
}

func TestMountDrawsMarkersAndFollowsChanges(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))
	require.NoError(t, f.widget.Mount(context.Background()))

	assert.True(t, f.view.HasDecorator(f.dec))
	assert.Equal(t, 1, f.hub.Subscribers(lot.Table))
	assert.Len(t, f.view.Decorate().Decorations, 3)

	f.hub.Publish(realtime.Event{Type: realtime.EventInsert, Table: lot.Table,
		New: []byte(`{"id":"4","label":"D","capacity":2,"available":2,"longitude":121.5345,"latitude":25.0173}`)})
	assert.Len(t, f.view.Decorate().Decorations, 4)
	assert.Len(t, f.widget.Records(), 4)
}

func TestMountFetchFailure(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	f.lots.err = errors.New("connection refused")
	err := f.widget.Mount(context.Background())
	assert.ErrorIs(t, err, marker.ErrStoreQueryFailed)
	assert.True(t, f.widget.Mounted())
	assert.Empty(t, f.view.Decorate().Decorations)
}

func TestMissingIconSkipsDrawing(t *testing.T) {
	f := newFixture(t, "missing.svg")
	require.NoError(t, f.widget.Mount(context.Background()))
	assert.Empty(t, f.view.Decorate().Decorations)
	assert.Len(t, f.widget.Records(), 3)
}

func TestUnmountIsIdempotentAndDropsLateResults(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))

	f.widget.Unmount()
	f.widget.Unmount()
	assert.False(t, f.view.HasDecorator(f.dec))
	assert.Equal(t, 0, f.hub.Subscribers(lot.Table))

	_, err := f.widget.Occupy(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, f.notices.all())
}

func TestSetVisibleTogglesDecorator(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))

	f.widget.SetVisible(false)
	assert.False(t, f.view.HasDecorator(f.dec))
	assert.Empty(t, f.view.Decorate().Decorations)

	f.widget.SetVisible(true)
	assert.True(t, f.widget.Visible())
	assert.Len(t, f.view.Decorate().Decorations, 3)
}

func TestHandleActionOccupyAndRelease(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))

	a := marker.Action{Kind: marker.ActionOccupySpot, Record: marker.Record{ID: "2", Label: "B"}}
	require.NoError(t, f.widget.HandleAction(context.Background(), a))
	assert.Equal(t, []types.ID{"2"}, f.spots.occupied)

	a.Kind = marker.ActionReleaseSpot
	require.NoError(t, f.widget.HandleAction(context.Background(), a))
	assert.Equal(t, []types.ID{"2"}, f.spots.released)

	notices := f.notices.all()
	require.Len(t, notices, 2)
	assert.Equal(t, "Occupied spot A01 in lot B", notices[0].Message)
	assert.Equal(t, 2, notices[0].Available)
	assert.Equal(t, "Released spot A01 in lot B", notices[1].Message)
}

func TestHandleActionSurfacesFailures(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))
	f.spots.occupyErr = spot.ErrNoAvailableSpot

	err := f.widget.HandleAction(context.Background(), marker.Action{Kind: marker.ActionOccupySpot, Record: marker.Record{ID: "1"}})
	assert.ErrorIs(t, err, spot.ErrNoAvailableSpot)

	_, err = f.widget.Release(context.Background(), "nope")
	assert.ErrorIs(t, err, lot.ErrNotFound)

	notices := f.notices.all()
	require.Len(t, notices, 2)
	for _, n := range notices {
		assert.Equal(t, "error", n.Level)
	}
}

func TestInfoIncludesAddress(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	require.NoError(t, f.widget.Mount(context.Background()))

	info, err := f.widget.Info(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Parking lot A", info.Title)
	assert.Equal(t, "3 of 3 spots available", info.Detail)
	assert.Equal(t, "Roosevelt Rd, Taipei", info.Address)

	notices := f.notices.all()
	require.Len(t, notices, 1)
	assert.Equal(t, marker.ActionDisplayInfo, notices[0].Action)
}

func TestMenuPickRunsThroughWidget(t *testing.T) {
	f := newFixture(t, "pin_google_maps.svg")
	menus := popup.NewController()
	f.dec = marker.NewDecorator(f.view, menus, marker.DefaultOptions())
	f.widget = NewParkingWidget(Deps{
		Host: f.view, Decorator: f.dec, Adapter: marker.NewAdapter(f.lots, f.view), Feed: f.hub,
		Lots: f.lots, Spots: f.spots, Icons: icons.Load(context.Background(), svgLoader{}, []string{"pin_google_maps.svg"}),
		PinIcon: "pin_google_maps.svg", Notices: f.notices,
	})
	require.NoError(t, f.widget.Mount(context.Background()))

	frame := f.view.Decorate()
	require.NotEmpty(t, frame.Decorations)
	d := frame.Decorations[0]
	res := f.dec.Click(f.view, d.Bounds.Left+d.Bounds.Width/2, d.Bounds.Top+d.Bounds.Height/2)
	require.NotNil(t, res.Menu)

	require.NoError(t, menus.Pick(context.Background(), res.Menu.ID, 3))
	assert.Equal(t, []types.ID{types.ID(d.LotID)}, f.spots.occupied)
}

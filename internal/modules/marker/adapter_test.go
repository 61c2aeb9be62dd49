package marker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkmark/internal/modules/lot"
	"parkmark/internal/realtime"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

type fakeLister struct {
	rows []lot.Row
	err  error
}

func (f *fakeLister) List(ctx context.Context) ([]lot.Row, error) { return f.rows, f.err }

// identityProjector maps lon/lat straight to X/Y.
type identityProjector struct {
	mu          sync.Mutex
	calls       int
	unavailable bool
}

func (p *identityProjector) GeoToModel(ctx context.Context, lon, lat, h float64) (types.Point3D, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.unavailable {
		return types.Point3D{}, viewport.ErrViewportUnavailable
	}
	return types.Point3D{X: lon, Y: lat, Z: h}, nil
}

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func row(id, label string, capacity, available int, lon, lat float64) lot.Row {
	return lot.Row{ID: id, Label: label, Capacity: ip(capacity), Available: ip(available), Longitude: fp(lon), Latitude: fp(lat)}
}

func labels(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Label
	}
	return out
}

func TestFetchAllKeepsOrderAndSkipsInvalid(t *testing.T) {
	bad := row("X", "X", 1, 1, 0, 0)
	bad.Latitude = nil
	lister := &fakeLister{rows: []lot.Row{
		row("1", "A", 3, 3, 1, 1),
		row("2", "B", 3, 2, 2, 2),
		bad,
		row("3", "C", 5, 0, 3, 3),
	}}
	a := NewAdapter(lister, &identityProjector{})

	recs, err := a.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, labels(recs))
	assert.Equal(t, types.Point3D{X: 2, Y: 2}, recs[1].Point)
}

func TestFetchAllEmpty(t *testing.T) {
	recs, err := NewAdapter(&fakeLister{}, &identityProjector{}).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFetchAllErrors(t *testing.T) {
	_, err := NewAdapter(&fakeLister{err: errors.New("down")}, &identityProjector{}).FetchAll(context.Background())
	assert.ErrorIs(t, err, ErrStoreQueryFailed)

	lister := &fakeLister{rows: []lot.Row{row("1", "A", 1, 1, 0, 0)}}
	_, err = NewAdapter(lister, &identityProjector{unavailable: true}).FetchAll(context.Background())
	assert.ErrorIs(t, err, viewport.ErrViewportUnavailable)
}

func newSubscribedAdapter(t *testing.T, rows ...lot.Row) (*Adapter, *realtime.Hub, *identityProjector) {
	t.Helper()
	proj := &identityProjector{}
	a := NewAdapter(&fakeLister{rows: rows}, proj)
	hub := realtime.NewHub()
	a.Subscribe(hub)
	require.NoError(t, a.Load(context.Background()))
	return a, hub, proj
}

func publish(hub *realtime.Hub, typ realtime.EventType, newRow, oldRow string) {
	ev := realtime.Event{Type: typ, Table: lot.Table}
	if newRow != "" {
		ev.New = []byte(newRow)
	}
	if oldRow != "" {
		ev.Old = []byte(oldRow)
	}
	hub.Publish(ev)
}

func TestReducerAppliesToCurrentState(t *testing.T) {
	a, hub, _ := newSubscribedAdapter(t, row("1", "B", 3, 3, 1, 1))

	publish(hub, realtime.EventInsert, `{"id":"2","label":"A","capacity":2,"available":2,"longitude":5,"latitude":5}`, "")
	publish(hub, realtime.EventInsert, `{"id":"3","label":"C","capacity":2,"available":2,"longitude":6,"latitude":6}`, "")

	assert.Equal(t, []string{"A", "B", "C"}, labels(a.Snapshot()), "second insert must not drop the first")
}

func TestReducerUpdateReprojectsOnlyOnMove(t *testing.T) {
	a, hub, proj := newSubscribedAdapter(t, row("1", "A", 3, 3, 1, 1))
	before := proj.calls

	publish(hub, realtime.EventUpdate, `{"id":"1","label":"A","capacity":3,"available":1,"longitude":1,"latitude":1}`, "")
	rec, ok := a.Get("1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Available)
	assert.Equal(t, before, proj.calls)

	publish(hub, realtime.EventUpdate, `{"id":"1","label":"A","capacity":3,"available":1,"longitude":9,"latitude":8}`, "")
	rec, _ = a.Get("1")
	assert.Equal(t, types.Point3D{X: 9, Y: 8}, rec.Point)
	assert.Equal(t, before+1, proj.calls)
	assert.Len(t, a.Snapshot(), 1)
}

func TestReducerInsertWithExistingIDReplaces(t *testing.T) {
	a, hub, _ := newSubscribedAdapter(t, row("1", "A", 3, 3, 1, 1))
	publish(hub, realtime.EventInsert, `{"id":"1","label":"A","capacity":4,"available":4,"longitude":1,"latitude":1}`, "")
	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 4, snap[0].Capacity)
}

func TestReducerDeleteAndInvalidEvents(t *testing.T) {
	a, hub, _ := newSubscribedAdapter(t, row("1", "A", 3, 3, 1, 1), row("2", "B", 3, 3, 2, 2))

	publish(hub, realtime.EventUpdate, `{"id":"1","label":"A"}`, "")
	publish(hub, realtime.EventInsert, `garbage`, "")
	assert.Len(t, a.Snapshot(), 2)

	publish(hub, realtime.EventDelete, "", `{"id":"1"}`)
	assert.Equal(t, []string{"B"}, labels(a.Snapshot()))

	publish(hub, realtime.EventDelete, "", `{"id":"missing"}`)
	assert.Len(t, a.Snapshot(), 1)
}

func TestObserversSeeEveryChange(t *testing.T) {
	a, hub, _ := newSubscribedAdapter(t, row("1", "A", 3, 3, 1, 1))
	var seen [][]string
	cancel := a.OnChange(func(rs []Record) { seen = append(seen, labels(rs)) })

	publish(hub, realtime.EventInsert, `{"id":"2","label":"B","capacity":1,"available":1,"longitude":2,"latitude":2}`, "")
	publish(hub, realtime.EventDelete, "", `{"id":"1"}`)
	cancel()
	publish(hub, realtime.EventDelete, "", `{"id":"2"}`)

	assert.Equal(t, [][]string{{"A", "B"}, {"B"}}, seen)
}

func TestResyncReloads(t *testing.T) {
	lister := &fakeLister{rows: []lot.Row{row("1", "A", 3, 3, 1, 1)}}
	a := NewAdapter(lister, &identityProjector{})
	hub := realtime.NewHub()
	a.Subscribe(hub)
	require.NoError(t, a.Load(context.Background()))

	lister.rows = append(lister.rows, row("2", "B", 1, 1, 2, 2))
	hub.PublishResync()
	assert.Equal(t, []string{"A", "B"}, labels(a.Snapshot()))
}

func TestCloseDiscardsLateResults(t *testing.T) {
	a, hub, _ := newSubscribedAdapter(t, row("1", "A", 3, 3, 1, 1))
	a.Close()
	a.Unsubscribe()

	assert.Equal(t, 0, hub.Subscribers(lot.Table))
	publish(hub, realtime.EventDelete, "", `{"id":"1"}`)
	assert.Len(t, a.Snapshot(), 1)

	assert.ErrorIs(t, a.Load(context.Background()), ErrAdapterClosed)
	_, _ = a.upsert(lot.Lot{ID: "9", Label: "Z"})
	assert.Len(t, a.Snapshot(), 1)
}

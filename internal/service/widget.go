// README: ParkingWidget hosts the marker pipeline on a viewport and turns menu actions into spot operations and notices.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"parkmark/internal/icons"
	"parkmark/internal/logging"
	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/marker"
	"parkmark/internal/modules/spot"
	"parkmark/internal/realtime"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

var ErrNotMounted = errors.New("widget not mounted")

// MsgNotice is the broadcast message type for operation outcomes.
const MsgNotice = "notice"

type Broadcaster interface {
	Broadcast(msgType string, data any)
}

type AddressResolver interface {
	Address(ctx context.Context, lat, lng float64) (string, error)
}

type LotReader interface {
	Get(ctx context.Context, id types.ID) (lot.Lot, error)
}

type SpotAllocator interface {
	Occupy(ctx context.Context, l lot.Lot) (spot.Spot, error)
	Release(ctx context.Context, l lot.Lot) (spot.ReleaseResult, error)
}

type DecoratorHost interface {
	AddDecorator(d viewport.Decorator)
	DropDecorator(d viewport.Decorator)
}

type Notice struct {
	Level     string            `json:"level"`
	Action    marker.ActionKind `json:"action"`
	LotID     types.ID          `json:"lot_id"`
	Label     string            `json:"label,omitempty"`
	Message   string            `json:"message"`
	Capacity  int               `json:"capacity"`
	Available int               `json:"available"`
	Address   string            `json:"address,omitempty"`
	Spot      *spot.Spot        `json:"spot,omitempty"`
}

type Info struct {
	Lot     lot.Lot `json:"lot"`
	Title   string  `json:"title"`
	Detail  string  `json:"detail"`
	Address string  `json:"address,omitempty"`
}

type Deps struct {
	Host      DecoratorHost
	Decorator *marker.Decorator
	Adapter   *marker.Adapter
	Feed      realtime.Feed
	Lots      LotReader
	Spots     SpotAllocator
	Icons     *icons.Repository
	PinIcon   string
	Geocoder  AddressResolver
	Notices   Broadcaster
}

type ParkingWidget struct {
	deps Deps

	mu        sync.Mutex
	mounted   bool
	visible   bool
	cancelObs func()
}

func NewParkingWidget(deps Deps) *ParkingWidget {
	w := &ParkingWidget{deps: deps, visible: true}
	deps.Decorator.SetActionHandler(w.HandleAction)
	return w
}

// Mount registers the decorator, subscribes to lot changes and performs the
// initial fetch. A failed fetch is returned but the widget stays mounted and
// picks up later change events.
func (w *ParkingWidget) Mount(ctx context.Context) error {
	w.mu.Lock()
	if w.mounted {
		w.mu.Unlock()
		return nil
	}
	w.mounted = true
	w.cancelObs = w.deps.Adapter.OnChange(w.redraw)
	visible := w.visible
	w.mu.Unlock()

	if visible {
		w.deps.Host.AddDecorator(w.deps.Decorator)
	}
	w.deps.Adapter.Subscribe(w.deps.Feed)
	if err := w.deps.Adapter.Load(ctx); err != nil {
		logging.Error().Err(err).Msg("initial marker fetch failed")
		return err
	}
	logging.Info().Int("lots", len(w.deps.Adapter.Snapshot())).Msg("parking widget mounted")
	return nil
}

// Unmount is idempotent: the change subscription is released exactly once.
func (w *ParkingWidget) Unmount() {
	w.mu.Lock()
	if !w.mounted {
		w.mu.Unlock()
		return
	}
	w.mounted = false
	cancel := w.cancelObs
	w.cancelObs = nil
	w.mu.Unlock()

	cancel()
	w.deps.Adapter.Unsubscribe()
	w.deps.Host.DropDecorator(w.deps.Decorator)
	logging.Info().Msg("parking widget unmounted")
}

func (w *ParkingWidget) Mounted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mounted
}

// SetVisible shows or hides the markers without touching the data pipeline.
func (w *ParkingWidget) SetVisible(visible bool) {
	w.mu.Lock()
	changed := w.visible != visible
	w.visible = visible
	mounted := w.mounted
	w.mu.Unlock()
	if !changed || !mounted {
		return
	}
	if visible {
		w.deps.Host.AddDecorator(w.deps.Decorator)
	} else {
		w.deps.Host.DropDecorator(w.deps.Decorator)
	}
}

func (w *ParkingWidget) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *ParkingWidget) Records() []marker.Record {
	return w.deps.Adapter.Snapshot()
}

func (w *ParkingWidget) Record(id types.ID) (marker.Record, bool) {
	return w.deps.Adapter.Get(id)
}

func (w *ParkingWidget) redraw(records []marker.Record) {
	if !w.Mounted() {
		return
	}
	icon, ok := w.deps.Icons.Get(w.deps.PinIcon)
	if !ok {
		logging.Warn().Err(w.deps.Icons.Err(w.deps.PinIcon)).Str("icon", w.deps.PinIcon).Msg("pin icon unavailable, markers not drawn")
		return
	}
	w.deps.Decorator.SetMarkersData(records, icon, nil)
}

// HandleAction runs a marker menu action. Failures are also published as
// error notices.
func (w *ParkingWidget) HandleAction(ctx context.Context, a marker.Action) error {
	var err error
	switch a.Kind {
	case marker.ActionDisplayInfo:
		_, err = w.Info(ctx, a.Record.ID)
	case marker.ActionOccupySpot:
		_, err = w.Occupy(ctx, a.Record.ID)
	case marker.ActionReleaseSpot:
		_, err = w.Release(ctx, a.Record.ID)
	case marker.ActionSelect:
		w.notify(Notice{Level: "info", Action: a.Kind, LotID: a.Record.ID, Label: a.Record.Label, Message: a.Record.Title(),
			Capacity: a.Record.Capacity, Available: a.Record.Available})
	default:
		err = fmt.Errorf("unknown marker action %q", a.Kind)
	}
	return err
}

func (w *ParkingWidget) Occupy(ctx context.Context, id types.ID) (spot.Spot, error) {
	l, err := w.deps.Lots.Get(ctx, id)
	if err != nil {
		w.fail(marker.ActionOccupySpot, id, err)
		return spot.Spot{}, err
	}
	sp, err := w.deps.Spots.Occupy(ctx, l)
	if err != nil {
		w.fail(marker.ActionOccupySpot, id, err)
		return spot.Spot{}, err
	}
	w.notify(Notice{
		Level: "info", Action: marker.ActionOccupySpot, LotID: id, Label: l.Label,
		Message:  fmt.Sprintf("Occupied spot %s in lot %s", sp.Label, l.Label),
		Capacity: l.Capacity, Available: l.Available - 1, Spot: &sp,
	})
	return sp, nil
}

func (w *ParkingWidget) Release(ctx context.Context, id types.ID) (spot.ReleaseResult, error) {
	l, err := w.deps.Lots.Get(ctx, id)
	if err != nil {
		w.fail(marker.ActionReleaseSpot, id, err)
		return spot.ReleaseResult{}, err
	}
	res, err := w.deps.Spots.Release(ctx, l)
	if err != nil {
		w.fail(marker.ActionReleaseSpot, id, err)
		return spot.ReleaseResult{}, err
	}
	n := Notice{Level: "info", Action: marker.ActionReleaseSpot, LotID: id, Label: l.Label,
		Capacity: l.Capacity, Available: l.Available, Spot: res.Spot}
	if res.Released {
		n.Message = fmt.Sprintf("Released spot %s in lot %s", res.Spot.Label, l.Label)
		n.Available++
	} else {
		n.Message = fmt.Sprintf("No occupied spot in lot %s", l.Label)
	}
	w.notify(n)
	return res, nil
}

// Info reads the lot fresh from the store. The address lookup is best effort.
func (w *ParkingWidget) Info(ctx context.Context, id types.ID) (Info, error) {
	l, err := w.deps.Lots.Get(ctx, id)
	if err != nil {
		w.fail(marker.ActionDisplayInfo, id, err)
		return Info{}, err
	}
	rec := marker.FromLot(l, types.Point3D{})
	info := Info{Lot: l, Title: rec.Title(), Detail: rec.Description()}
	if w.deps.Geocoder != nil {
		addr, err := w.deps.Geocoder.Address(ctx, l.Latitude, l.Longitude)
		if err != nil {
			logging.Warn().Err(err).Str("lot_id", string(id)).Msg("reverse geocode failed")
		} else {
			info.Address = addr
		}
	}
	logging.Info().Str("label", l.Label).Int("capacity", l.Capacity).Int("available", l.Available).Msg("lot info")
	w.notify(Notice{
		Level: "info", Action: marker.ActionDisplayInfo, LotID: id, Label: l.Label,
		Message: info.Title + ": " + info.Detail, Capacity: l.Capacity, Available: l.Available, Address: info.Address,
	})
	return info, nil
}

func (w *ParkingWidget) fail(action marker.ActionKind, id types.ID, err error) {
	logging.Error().Err(err).Str("lot_id", string(id)).Str("op", string(action)).Msg("marker action failed")
	w.notify(Notice{Level: "error", Action: action, LotID: id, Message: err.Error()})
}

// notify drops notices once the widget is unmounted.
func (w *ParkingWidget) notify(n Notice) {
	if w.deps.Notices == nil || !w.Mounted() {
		return
	}
	w.deps.Notices.Broadcast(MsgNotice, n)
}

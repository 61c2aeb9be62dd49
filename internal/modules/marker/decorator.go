// README: Marker decorator: automatic and manual pin sets drawn into the viewport, plus click dispatch.
package marker

import (
	"context"
	"fmt"
	"sync"

	"parkmark/internal/icons"
	"parkmark/internal/modules/popup"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

// Host is the viewport surface the decorator drives.
type Host interface {
	InvalidateDecorations()
	Zoom(p types.Point3D, factor float64, animate bool)
}

type MenuPresenter interface {
	Show(x, y float64, entries []popup.Entry) *popup.Menu
}

// ActionHandler receives the parking-lot actions chosen from a pin menu.
type ActionHandler func(ctx context.Context, a Action) error

type Options struct {
	MinimumClusterSize int
	ClusterRadiusPx    float64
	PinHeightPx        float64
}

func DefaultOptions() Options {
	return Options{MinimumClusterSize: 5, ClusterRadiusPx: 35, PinHeightPx: 35}
}

const (
	menuOffset          = 8.0
	defaultManualTitle  = "Manual"
	defaultManualDetail = "description test goes here"
)

// Menu labels, in display order.
const (
	LabelCenterView   = "Center View"
	LabelRemoveMarker = "Remove Marker"
	LabelDisplayInfo  = "Display info"
	LabelOccupySpot   = "Occupy spot"
	LabelReleaseSpot  = "Release spot"
)

type Decorator struct {
	host  Host
	menus MenuPresenter
	opts  Options

	mu       sync.Mutex
	auto     *markerSet
	manual   *markerSet
	onAction ActionHandler
}

func NewDecorator(host Host, menus MenuPresenter, opts Options) *Decorator {
	if opts.PinHeightPx <= 0 {
		opts.PinHeightPx = 35
	}
	if opts.MinimumClusterSize < 1 {
		opts.MinimumClusterSize = 5
	}
	return &Decorator{
		host:   host,
		menus:  menus,
		opts:   opts,
		auto:   &markerSet{},
		manual: &markerSet{manual: true},
	}
}

func (d *Decorator) SetActionHandler(h ActionHandler) {
	d.mu.Lock()
	d.onAction = h
	d.mu.Unlock()
}

// SetMarkersData rebuilds the automatic set, one pin per record, and requests
// a single redraw.
func (d *Decorator) SetMarkersData(records []Record, icon icons.Icon, onInteract InteractFunc) {
	pins := make([]*Pin, 0, len(records))
	for i, rec := range records {
		pins = append(pins, newPin(rec, fmt.Sprintf("Marker %d", i+1), "", icon, DefaultScale, onInteract, false))
	}
	d.mu.Lock()
	d.auto.pins = pins
	d.auto.onInteract = onInteract
	d.mu.Unlock()
	d.host.InvalidateDecorations()
}

func (d *Decorator) AddManualPoint(point types.Point3D, icon icons.Icon) *Pin {
	return d.addManual(newPin(Record{Point: point}, defaultManualTitle, "", icon, DefaultScale, nil, true))
}

type manualConfig struct {
	title       string
	description string
	scale       ScaleRange
	onInteract  InteractFunc
}

type ManualOption func(*manualConfig)

func WithTitle(t string) ManualOption          { return func(c *manualConfig) { c.title = t } }
func WithDescription(s string) ManualOption    { return func(c *manualConfig) { c.description = s } }
func WithScale(r ScaleRange) ManualOption      { return func(c *manualConfig) { c.scale = r } }
func WithInteract(f InteractFunc) ManualOption { return func(c *manualConfig) { c.onInteract = f } }

// AddManualMarker appends a user-placed pin. Title and description default to
// "Manual" and a placeholder line unless the record supplies its own.
func (d *Decorator) AddManualMarker(rec Record, icon icons.Icon, opts ...ManualOption) *Pin {
	cfg := manualConfig{title: defaultManualTitle, description: defaultManualDetail, scale: DefaultScale}
	for _, o := range opts {
		o(&cfg)
	}
	return d.addManual(newPin(rec, cfg.title, cfg.description, icon, cfg.scale, cfg.onInteract, true))
}

func (d *Decorator) addManual(pin *Pin) *Pin {
	d.mu.Lock()
	d.manual.pins = append(d.manual.pins, pin)
	d.mu.Unlock()
	d.host.InvalidateDecorations()
	return pin
}

// RemoveMarker drops pin from whichever set holds it.
func (d *Decorator) RemoveMarker(pin *Pin) bool {
	d.mu.Lock()
	removed := d.manual.remove(pin) || d.auto.remove(pin)
	d.mu.Unlock()
	if removed {
		d.host.InvalidateDecorations()
	}
	return removed
}

func (d *Decorator) RemoveManual(index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.manual.pins) {
		d.mu.Unlock()
		return ErrNoSuchMarker
	}
	d.manual.pins = append(d.manual.pins[:index:index], d.manual.pins[index+1:]...)
	d.mu.Unlock()
	d.host.InvalidateDecorations()
	return nil
}

func (d *Decorator) removeManualPin(pin *Pin) {
	d.mu.Lock()
	removed := d.manual.remove(pin)
	d.mu.Unlock()
	if removed {
		d.host.InvalidateDecorations()
	}
}

func (d *Decorator) ClearManual() {
	d.mu.Lock()
	d.manual.pins = nil
	d.mu.Unlock()
	d.host.InvalidateDecorations()
}

func (d *Decorator) ManualPins() []*Pin {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pin(nil), d.manual.pins...)
}

func (d *Decorator) AutoPins() []*Pin {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Pin(nil), d.auto.pins...)
}

// Decorate binds both sets to the drawing viewport on first use and draws them
// only into spatial views.
func (d *Decorator) Decorate(dc *viewport.DecorateContext) {
	view := dc.View()
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, set := range []*markerSet{d.auto, d.manual} {
		if set.viewportID == "" {
			set.viewportID = view.ID()
		}
	}
	if !view.IsSpatial() {
		return
	}
	for _, set := range []*markerSet{d.auto, d.manual} {
		for _, p := range layout(set, view, d.opts) {
			dc.AddDecoration(p.decoration)
		}
	}
}

// Click resolves a pointer click at view coordinates (x, y). Manual pins are
// drawn last and therefore hit first.
func (d *Decorator) Click(view viewport.View, x, y float64) ClickResult {
	if !view.IsSpatial() {
		return ClickResult{}
	}

	d.mu.Lock()
	var hit *placed
	for _, set := range []*markerSet{d.manual, d.auto} {
		items := layout(set, view, d.opts)
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].decoration.Bounds.Contains(x, y) {
				hit = &items[i]
				break
			}
		}
		if hit != nil {
			break
		}
	}
	d.mu.Unlock()

	if hit == nil {
		return ClickResult{}
	}

	if hit.pin == nil {
		cb := hit.set.onInteract
		if cb == nil {
			return ClickResult{Handled: true}
		}
		rec := hit.cluster[0].record
		cb(rec)
		return ClickResult{Handled: true, Action: &Action{Kind: ActionSelect, Record: rec}}
	}

	if cb := hit.pin.onInteract; cb != nil {
		rec := hit.pin.record
		cb(rec)
		return ClickResult{Handled: true, Action: &Action{Kind: ActionSelect, Record: rec}}
	}

	menu := d.menus.Show(x-menuOffset, y-menuOffset, d.menuEntries(hit.pin))
	return ClickResult{Handled: true, Menu: menu}
}

func (d *Decorator) menuEntries(pin *Pin) []popup.Entry {
	rec := pin.record
	return []popup.Entry{
		{Label: LabelCenterView, OnPicked: func(context.Context) error {
			d.host.Zoom(rec.Point, 1.0, true)
			return nil
		}},
		{Label: LabelRemoveMarker, OnPicked: func(context.Context) error {
			d.removeManualPin(pin)
			return nil
		}},
		{Label: LabelDisplayInfo, OnPicked: func(ctx context.Context) error {
			return d.dispatch(ctx, Action{Kind: ActionDisplayInfo, Record: rec})
		}},
		{Label: LabelOccupySpot, OnPicked: func(ctx context.Context) error {
			return d.dispatch(ctx, Action{Kind: ActionOccupySpot, Record: rec})
		}},
		{Label: LabelReleaseSpot, OnPicked: func(ctx context.Context) error {
			return d.dispatch(ctx, Action{Kind: ActionReleaseSpot, Record: rec})
		}},
	}
}

func (d *Decorator) dispatch(ctx context.Context, a Action) error {
	d.mu.Lock()
	h := d.onAction
	d.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, a)
}

// README: Pin markers, marker sets and the screen-space clustering pass.
package marker

import (
	"math"
	"strconv"

	"parkmark/internal/icons"
	"parkmark/internal/types"
	"parkmark/internal/viewport"
)

// ScaleRange bounds the zoom-dependent pin scale.
type ScaleRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

var DefaultScale = ScaleRange{Low: 0.75, High: 2.0}

func (s ScaleRange) clamp(v float64) float64 {
	return math.Max(s.Low, math.Min(s.High, v))
}

// InteractFunc is a direct click handler; it replaces the default menu.
type InteractFunc func(Record)

// Pin is compared by identity; two pins for the same record are distinct.
type Pin struct {
	record      Record
	title       string
	description string
	icon        icons.Icon
	scale       ScaleRange
	onInteract  InteractFunc
	manual      bool
}

// newPin prefers the record's own title/description and falls back to the
// given defaults when the record has none.
func newPin(rec Record, title, description string, icon icons.Icon, scale ScaleRange, onInteract InteractFunc, manual bool) *Pin {
	if t := rec.Title(); t != "" {
		title = t
		description = rec.Description()
	}
	return &Pin{
		record:      rec,
		title:       title,
		description: description,
		icon:        icon,
		scale:       scale,
		onInteract:  onInteract,
		manual:      manual,
	}
}

func (p *Pin) Record() Record      { return p.record }
func (p *Pin) Title() string       { return p.title }
func (p *Pin) Description() string { return p.description }
func (p *Pin) Manual() bool        { return p.manual }

func (p *Pin) tooltip() []string {
	if p.description == "" {
		return []string{p.title}
	}
	return []string{p.title, p.description}
}

// size keeps the icon's aspect ratio at a fixed pixel height.
func (p *Pin) size(height float64) (float64, float64) {
	if p.icon.Width <= 0 || p.icon.Height <= 0 {
		return height, height
	}
	return p.icon.Width * (height / p.icon.Height), height
}

type markerSet struct {
	manual     bool
	pins       []*Pin
	onInteract InteractFunc
	viewportID string
}

func (s *markerSet) remove(pin *Pin) bool {
	for i, p := range s.pins {
		if p == pin {
			s.pins = append(s.pins[:i:i], s.pins[i+1:]...)
			return true
		}
	}
	return false
}

const (
	clusterDiameter = 26.0
	maxTooltipLines = 10
)

// placed is one drawable item with what it stands for.
type placed struct {
	decoration viewport.Decoration
	set        *markerSet
	pin        *Pin
	cluster    []*Pin
}

type group struct {
	anchor types.Point2D
	pins   []*Pin
	points []types.Point2D
}

// layout projects the set's pins and groups those within radius of a group's
// first pin. Groups of at least minimum (and more than one pin) become a
// single cluster.
func layout(set *markerSet, view viewport.View, opts Options) []placed {
	zoomScale := 1.0
	if mpp := view.MetersPerPixel(); mpp > 0 {
		zoomScale = 1 / mpp
	}

	var groups []*group
	for _, pin := range set.pins {
		pt, ok := view.WorldToView(pin.record.Point)
		if !ok {
			continue
		}
		var target *group
		for _, g := range groups {
			if math.Hypot(pt.X-g.anchor.X, pt.Y-g.anchor.Y) <= opts.ClusterRadiusPx {
				target = g
				break
			}
		}
		if target == nil {
			target = &group{anchor: pt}
			groups = append(groups, target)
		}
		target.pins = append(target.pins, pin)
		target.points = append(target.points, pt)
	}

	var out []placed
	for _, g := range groups {
		if len(g.pins) > 1 && len(g.pins) >= opts.MinimumClusterSize {
			out = append(out, placed{
				decoration: clusterDecoration(g, set.manual),
				set:        set,
				cluster:    g.pins,
			})
			continue
		}
		for i, pin := range g.pins {
			out = append(out, placed{
				decoration: pinDecoration(pin, g.points[i], opts.PinHeightPx, zoomScale),
				set:        set,
				pin:        pin,
			})
		}
	}
	return out
}

// pinDecoration draws the image above the anchor so the pin tip sits on it;
// the pick rectangle moves with the image.
func pinDecoration(pin *Pin, pt types.Point2D, height, zoomScale float64) viewport.Decoration {
	s := pin.scale.clamp(zoomScale)
	w, h := pin.size(height)
	offsetY := math.Floor(h*0.5) * s
	w, h = w*s, h*s
	return viewport.Decoration{
		Kind:    viewport.KindPin,
		Anchor:  pt,
		Bounds:  viewport.Rect{Left: pt.X - w/2, Top: pt.Y - h/2 - offsetY, Width: w, Height: h},
		Icon:    pin.icon.URL,
		Tooltip: pin.tooltip(),
		Scale:   s,
		LotID:   string(pin.record.ID),
		Manual:  pin.manual,
	}
}

func clusterDecoration(g *group, manual bool) viewport.Decoration {
	return viewport.Decoration{
		Kind:    viewport.KindCluster,
		Anchor:  g.anchor,
		Bounds:  viewport.Rect{Left: g.anchor.X - clusterDiameter/2, Top: g.anchor.Y - clusterDiameter/2, Width: clusterDiameter, Height: clusterDiameter},
		Label:   strconv.Itoa(len(g.pins)),
		Tooltip: clusterTooltip(g.pins),
		Scale:   1,
		LotID:   string(g.pins[0].record.ID),
		Count:   len(g.pins),
		Manual:  manual,
	}
}

// clusterTooltip lists the first pin's title, then one line per pin (its
// description, or its title when it has none) for up to ten pins. The first
// pin therefore usually appears twice.
func clusterTooltip(pins []*Pin) []string {
	var lines []string
	for i, p := range pins {
		if i >= maxTooltipLines {
			break
		}
		if i == 0 {
			lines = append(lines, p.title)
		}
		if p.description == "" {
			lines = append(lines, p.title)
		} else {
			lines = append(lines, p.description)
		}
	}
	if len(pins) > maxTooltipLines {
		lines = append(lines, "…")
	}
	return lines
}

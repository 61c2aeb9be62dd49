// README: What decorators draw: per-frame decorations and the context they are added through.
package viewport

import (
	"time"

	"parkmark/internal/types"
)

type DecorationKind string

const (
	KindPin     DecorationKind = "pin"
	KindCluster DecorationKind = "cluster"
)

// Rect is a view-space rectangle, origin top-left.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Left+r.Width && y >= r.Top && y <= r.Top+r.Height
}

type Decoration struct {
	Kind    DecorationKind `json:"kind"`
	Anchor  types.Point2D  `json:"anchor"`
	Bounds  Rect           `json:"bounds"`
	Icon    string         `json:"icon,omitempty"`
	Label   string         `json:"label,omitempty"`
	Tooltip []string       `json:"tooltip,omitempty"`
	Scale   float64        `json:"scale"`
	LotID   string         `json:"lot_id,omitempty"`
	Count   int            `json:"count,omitempty"`
	Manual  bool           `json:"manual,omitempty"`
}

// View is the part of a viewport a decorator may use while drawing.
type View interface {
	ID() string
	IsSpatial() bool
	WorldToView(p types.Point3D) (types.Point2D, bool)
	MetersPerPixel() float64
}

// Decorator contributes decorations to every frame.
type Decorator interface {
	Decorate(dc *DecorateContext)
}

type DecorateContext struct {
	view        View
	decorations []Decoration
}

func NewDecorateContext(view View) *DecorateContext {
	return &DecorateContext{view: view}
}

func (dc *DecorateContext) View() View { return dc.view }

func (dc *DecorateContext) AddDecoration(d Decoration) {
	dc.decorations = append(dc.decorations, d)
}

func (dc *DecorateContext) Decorations() []Decoration { return dc.decorations }

type Transition struct {
	Animate  bool          `json:"animate"`
	Duration time.Duration `json:"duration"`
}

type CameraState struct {
	Center         types.Point3D `json:"center"`
	CenterGeo      types.Point   `json:"center_geo"`
	MetersPerPixel float64       `json:"meters_per_pixel"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	Spatial        bool          `json:"spatial"`
}

type Frame struct {
	Seq         uint64       `json:"seq"`
	ViewportID  string       `json:"viewport_id"`
	Camera      CameraState  `json:"camera"`
	Transition  *Transition  `json:"transition,omitempty"`
	Decorations []Decoration `json:"decorations"`
	RenderedAt  time.Time    `json:"rendered_at"`
}

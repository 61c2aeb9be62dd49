// README: Server-side host viewport: camera, projection, decorator registry and the coalescing frame loop.
package viewport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"parkmark/internal/logging"
	"parkmark/internal/metrics"
	"parkmark/internal/types"
)

var ErrViewportUnavailable = errors.New("viewport unavailable")

const zoomTransition = 500 * time.Millisecond

type Options struct {
	CenterLon      float64
	CenterLat      float64
	MetersPerPixel float64
	Width          int
	Height         int
	Spatial        bool
	FrameInterval  time.Duration
}

type Viewport struct {
	id        string
	projector *Projector
	interval  time.Duration

	mu         sync.RWMutex
	attached   bool
	spatial    bool
	center     types.Point3D
	mpp        float64
	width      int
	height     int
	transition *Transition
	decorators []Decorator

	invalid chan struct{}
	seq     atomic.Uint64

	subMu  sync.Mutex
	subs   map[int]func(Frame)
	nextID int
}

// New returns an attached viewport centred on the configured position.
func New(projector *Projector, opts Options) *Viewport {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	return &Viewport{
		id:        uuid.NewString(),
		projector: projector,
		interval:  opts.FrameInterval,
		attached:  true,
		spatial:   opts.Spatial,
		center:    projector.ToModel(opts.CenterLon, opts.CenterLat, 0),
		mpp:       opts.MetersPerPixel,
		width:     opts.Width,
		height:    opts.Height,
		invalid:   make(chan struct{}, 1),
		subs:      make(map[int]func(Frame)),
	}
}

func (v *Viewport) ID() string { return v.id }

func (v *Viewport) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.attached
}

func (v *Viewport) Attach() {
	v.mu.Lock()
	v.attached = true
	v.mu.Unlock()
	v.InvalidateDecorations()
}

// Detach models the scene going away; projection fails until Attach.
func (v *Viewport) Detach() {
	v.mu.Lock()
	v.attached = false
	v.mu.Unlock()
	v.InvalidateDecorations()
}

func (v *Viewport) IsSpatial() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.attached && v.spatial
}

func (v *Viewport) SetSpatial(spatial bool) {
	v.mu.Lock()
	v.spatial = spatial
	v.mu.Unlock()
	v.InvalidateDecorations()
}

// GeoToModel projects lon/lat/height into model space.
func (v *Viewport) GeoToModel(ctx context.Context, lon, lat, height float64) (types.Point3D, error) {
	if err := ctx.Err(); err != nil {
		return types.Point3D{}, err
	}
	if !v.Available() {
		return types.Point3D{}, ErrViewportUnavailable
	}
	return v.projector.ToModel(lon, lat, height), nil
}

// WorldToView maps a model point to view pixels. ok is false when the point
// falls outside the canvas.
func (v *Viewport) WorldToView(p types.Point3D) (types.Point2D, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.worldToViewLocked(p)
}

func (v *Viewport) worldToViewLocked(p types.Point3D) (types.Point2D, bool) {
	x := (p.X-v.center.X)/v.mpp + float64(v.width)/2
	y := float64(v.height)/2 - (p.Y-v.center.Y)/v.mpp
	inside := x >= 0 && x <= float64(v.width) && y >= 0 && y <= float64(v.height)
	return types.Point2D{X: x, Y: y}, inside
}

func (v *Viewport) MetersPerPixel() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mpp
}

// Zoom recentres on p and multiplies metres-per-pixel by factor.
func (v *Viewport) Zoom(p types.Point3D, factor float64, animate bool) {
	v.mu.Lock()
	v.center = types.Point3D{X: p.X, Y: p.Y}
	if factor > 0 {
		v.mpp *= factor
	}
	if animate {
		v.transition = &Transition{Animate: true, Duration: zoomTransition}
	}
	v.mu.Unlock()
	v.InvalidateDecorations()
}

// CameraUpdate carries optional camera changes; nil fields are left alone.
type CameraUpdate struct {
	CenterLon      *float64 `json:"center_lon"`
	CenterLat      *float64 `json:"center_lat"`
	MetersPerPixel *float64 `json:"meters_per_pixel"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	Spatial        *bool    `json:"spatial"`
}

var ErrBadCamera = errors.New("invalid camera update")

func (v *Viewport) SetCamera(u CameraUpdate) error {
	if (u.CenterLon == nil) != (u.CenterLat == nil) {
		return ErrBadCamera
	}
	if u.MetersPerPixel != nil && *u.MetersPerPixel <= 0 {
		return ErrBadCamera
	}
	if (u.Width != nil && *u.Width <= 0) || (u.Height != nil && *u.Height <= 0) {
		return ErrBadCamera
	}

	v.mu.Lock()
	if u.CenterLon != nil {
		v.center = v.projector.ToModel(*u.CenterLon, *u.CenterLat, 0)
	}
	if u.MetersPerPixel != nil {
		v.mpp = *u.MetersPerPixel
	}
	if u.Width != nil {
		v.width = *u.Width
	}
	if u.Height != nil {
		v.height = *u.Height
	}
	if u.Spatial != nil {
		v.spatial = *u.Spatial
	}
	v.mu.Unlock()
	v.InvalidateDecorations()
	return nil
}

func (v *Viewport) Camera() CameraState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cameraLocked()
}

func (v *Viewport) cameraLocked() CameraState {
	return CameraState{
		Center:         v.center,
		CenterGeo:      v.projector.ToGeo(v.center),
		MetersPerPixel: v.mpp,
		Width:          v.width,
		Height:         v.height,
		Spatial:        v.attached && v.spatial,
	}
}

// InvalidateDecorations requests a redraw. Calls between two frames collapse
// into one; it never blocks.
func (v *Viewport) InvalidateDecorations() {
	select {
	case v.invalid <- struct{}{}:
	default:
	}
}

// AddDecorator registers d once; repeated adds are ignored.
func (v *Viewport) AddDecorator(d Decorator) {
	v.mu.Lock()
	for _, existing := range v.decorators {
		if existing == d {
			v.mu.Unlock()
			return
		}
	}
	v.decorators = append(v.decorators, d)
	v.mu.Unlock()
	v.InvalidateDecorations()
}

func (v *Viewport) DropDecorator(d Decorator) {
	v.mu.Lock()
	for i, existing := range v.decorators {
		if existing == d {
			v.decorators = append(v.decorators[:i:i], v.decorators[i+1:]...)
			v.mu.Unlock()
			v.InvalidateDecorations()
			return
		}
	}
	v.mu.Unlock()
}

func (v *Viewport) HasDecorator(d Decorator) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, existing := range v.decorators {
		if existing == d {
			return true
		}
	}
	return false
}

// Decorate runs every registered decorator once and returns the frame.
func (v *Viewport) Decorate() Frame {
	v.mu.Lock()
	decorators := append([]Decorator(nil), v.decorators...)
	camera := v.cameraLocked()
	transition := v.transition
	v.transition = nil
	v.mu.Unlock()

	dc := NewDecorateContext(v)
	for _, d := range decorators {
		d.Decorate(dc)
	}
	metrics.FramesRendered.Inc()

	decorations := dc.Decorations()
	if decorations == nil {
		decorations = []Decoration{}
	}
	return Frame{
		Seq:         v.seq.Add(1),
		ViewportID:  v.id,
		Camera:      camera,
		Transition:  transition,
		Decorations: decorations,
		RenderedAt:  time.Now().UTC(),
	}
}

// Subscribe registers fn for frames produced by Serve.
func (v *Viewport) Subscribe(fn func(Frame)) (cancel func()) {
	v.subMu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.subMu.Unlock()
	return func() {
		v.subMu.Lock()
		delete(v.subs, id)
		v.subMu.Unlock()
	}
}

func (v *Viewport) publish(f Frame) {
	v.subMu.Lock()
	fns := make([]func(Frame), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.subMu.Unlock()
	for _, fn := range fns {
		fn(f)
	}
}

// Serve renders at most one frame per interval while invalidations arrive.
func (v *Viewport) Serve(ctx context.Context) error {
	logging.Info().Str("viewport_id", v.id).Dur("interval", v.interval).Msg("frame loop started")
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.invalid:
		}

		if wait := time.Until(last.Add(v.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		// fold invalidations that arrived while waiting into this frame
		select {
		case <-v.invalid:
		default:
		}

		frame := v.Decorate()
		last = time.Now()
		v.publish(frame)
	}
}

func (v *Viewport) String() string { return "viewport-frames" }

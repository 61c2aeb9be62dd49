// README: Marker records (one per parking lot), typed marker actions and click results.
package marker

import (
	"errors"
	"fmt"

	"parkmark/internal/modules/lot"
	"parkmark/internal/modules/popup"
	"parkmark/internal/types"
)

var (
	ErrStoreQueryFailed = errors.New("marker store query failed")
	ErrAdapterClosed    = errors.New("marker adapter closed")
	ErrNoSuchMarker     = errors.New("no such marker")
)

// Record is one parking lot placed in model space.
type Record struct {
	ID        types.ID      `json:"id"`
	Label     string        `json:"label"`
	Capacity  int           `json:"capacity"`
	Available int           `json:"available"`
	Longitude float64       `json:"longitude"`
	Latitude  float64       `json:"latitude"`
	Point     types.Point3D `json:"point"`
}

func FromLot(l lot.Lot, point types.Point3D) Record {
	return Record{
		ID:        l.ID,
		Label:     l.Label,
		Capacity:  l.Capacity,
		Available: l.Available,
		Longitude: l.Longitude,
		Latitude:  l.Latitude,
		Point:     point,
	}
}

func (r Record) Lot() lot.Lot {
	return lot.Lot{
		ID:        r.ID,
		Label:     r.Label,
		Capacity:  r.Capacity,
		Available: r.Available,
		Longitude: r.Longitude,
		Latitude:  r.Latitude,
	}
}

// Title is the tooltip headline; empty for records without a label.
func (r Record) Title() string {
	if r.Label == "" {
		return ""
	}
	return "Parking lot " + r.Label
}

func (r Record) Description() string {
	if r.ID == "" {
		return ""
	}
	return fmt.Sprintf("%d of %d spots available", r.Available, r.Capacity)
}

type ActionKind string

const (
	ActionSelect      ActionKind = "select"
	ActionDisplayInfo ActionKind = "display_info"
	ActionOccupySpot  ActionKind = "occupy_spot"
	ActionReleaseSpot ActionKind = "release_spot"
)

type Action struct {
	Kind   ActionKind `json:"kind"`
	Record Record     `json:"record"`
}

// ClickResult tells the caller what a click did. Handled is false when no
// marker was under the pointer.
type ClickResult struct {
	Handled bool        `json:"handled"`
	Menu    *popup.Menu `json:"menu,omitempty"`
	Action  *Action     `json:"action,omitempty"`
}

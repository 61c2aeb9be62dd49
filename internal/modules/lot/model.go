// README: Parking lot aggregate and the loosely-typed row it is decoded from.
package lot

import (
	"errors"
	"fmt"
	"time"

	"parkmark/internal/types"
)

// Table is the store table holding lots; change events are keyed by it.
const Table = "parkinglot"

var (
	ErrNotFound   = errors.New("parking lot not found")
	ErrInvalidRow = errors.New("invalid parking lot row")
	ErrBadRequest = errors.New("bad request")
)

type Lot struct {
	ID        types.ID  `json:"id"`
	Label     string    `json:"label"`
	Capacity  int       `json:"capacity"`
	Available int       `json:"available"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Row mirrors a parkinglot row as it arrives from a query or a change payload.
// Numeric fields are pointers so a missing column is distinguishable from zero.
type Row struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Capacity  *int       `json:"capacity"`
	Available *int       `json:"available"`
	Longitude *float64   `json:"longitude"`
	Latitude  *float64   `json:"latitude"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Validate converts the row into a Lot, rejecting rows that lack an id or any
// numeric column.
func (r Row) Validate() (Lot, error) {
	switch {
	case r.ID == "":
		return Lot{}, fmt.Errorf("%w: missing id", ErrInvalidRow)
	case r.Capacity == nil:
		return Lot{}, fmt.Errorf("%w: %s missing capacity", ErrInvalidRow, r.ID)
	case r.Available == nil:
		return Lot{}, fmt.Errorf("%w: %s missing available", ErrInvalidRow, r.ID)
	case r.Longitude == nil || r.Latitude == nil:
		return Lot{}, fmt.Errorf("%w: %s missing coordinates", ErrInvalidRow, r.ID)
	case *r.Capacity < 0:
		return Lot{}, fmt.Errorf("%w: %s negative capacity", ErrInvalidRow, r.ID)
	}
	l := Lot{
		ID:        types.ID(r.ID),
		Label:     r.Label,
		Capacity:  *r.Capacity,
		Available: *r.Available,
		Longitude: *r.Longitude,
		Latitude:  *r.Latitude,
	}
	if r.UpdatedAt != nil {
		l.UpdatedAt = *r.UpdatedAt
	}
	return l, nil
}

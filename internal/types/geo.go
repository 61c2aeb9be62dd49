// README: Common identifier and coordinate value objects used across modules.
package types

// ID identifies a stored row (parking lot ids, spot labels).
type ID string

// Point is a WGS-84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point3D is a position in the viewport's model space (EPSG:3857 metres, Z up).
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point2D is a position in view (screen) pixels, origin top-left.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

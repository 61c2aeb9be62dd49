// README: WGS-84 <-> model-space (EPSG:3857) projection.
package viewport

import (
	"github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"parkmark/internal/types"
)

// Projector converts between geographic degrees and the viewport's model
// space. Height passes through unchanged as Z.
type Projector struct {
	forward func(a, b, c float64) (float64, float64, float64)
	inverse func(a, b, c float64) (float64, float64, float64)
}

func NewProjector() *Projector {
	epsg := wgs84.EPSG()
	return &Projector{
		forward: epsg.Transform(4326, 3857),
		inverse: epsg.Transform(3857, 4326),
	}
}

// Project returns the model-space point for lon/lat/height.
func (p *Projector) Project(lon, lat, height float64) geom.Point {
	x, y, _ := p.forward(lon, lat, 0)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Z:    height,
		Type: geom.DimXYZ,
	})
}

// ToModel is Project flattened into a Point3D.
func (p *Projector) ToModel(lon, lat, height float64) types.Point3D {
	return PointFromGeom(p.Project(lon, lat, height))
}

// ToGeo inverts ToModel, dropping Z.
func (p *Projector) ToGeo(pt types.Point3D) types.Point {
	lon, lat, _ := p.inverse(pt.X, pt.Y, 0)
	return types.Point{Lat: lat, Lng: lon}
}

func PointFromGeom(pt geom.Point) types.Point3D {
	c, ok := pt.Coordinates()
	if !ok {
		return types.Point3D{}
	}
	return types.Point3D{X: c.XY.X, Y: c.XY.Y, Z: c.Z}
}

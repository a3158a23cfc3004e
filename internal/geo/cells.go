// Package geo maps cell ids onto the S2 cell hierarchy and turns sets of
// cells into polygons.
//
// Coordinates are longitude/latitude degrees in orb's [lon, lat] order.
// Regions crossing the antimeridian are not supported.
package geo

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// DefaultLevel is the S2 level observations are indexed at, roughly
// 1.2 km cells.
const DefaultLevel = 13

var (
	// ErrInvalidCell reports a cell id that is not a valid S2 cell.
	ErrInvalidCell = errors.New("invalid cell id")
	// ErrNotSinglePolygon reports a union of cells that does not form one
	// polygon.
	ErrNotSinglePolygon = errors.New("cells do not form a single polygon")
)

// Grid resolves cells at a fixed S2 level.
type Grid struct {
	Level int
}

// NewGrid returns a grid at level, or DefaultLevel when level is out of
// range.
func NewGrid(level int) Grid {
	if level < 0 || level > s2.MaxLevel {
		level = DefaultLevel
	}
	return Grid{Level: level}
}

// CellAt returns the cell containing the point.
func (g Grid) CellAt(lon, lat float64) traffic.CellID {
	leaf := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon))
	return traffic.CellID(leaf.Parent(g.Level))
}

func toS2(id traffic.CellID) (s2.CellID, error) {
	c := s2.CellID(id)
	if !c.IsValid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCell, id)
	}
	return c, nil
}

// Check reports whether id is a valid cell at the grid's level.
func (g Grid) Check(id traffic.CellID) error {
	c, err := toS2(id)
	if err != nil {
		return err
	}
	if c.Level() != g.Level {
		return fmt.Errorf("%w: %s is level %d, want %d", ErrInvalidCell, id, c.Level(), g.Level)
	}
	return nil
}

// CellCenter returns the longitude and latitude of the cell centre.
func (g Grid) CellCenter(id traffic.CellID) (lon, lat float64, err error) {
	c, err := toS2(id)
	if err != nil {
		return 0, 0, err
	}
	ll := c.LatLng()
	return ll.Lng.Degrees(), ll.Lat.Degrees(), nil
}

func vertices(c s2.CellID) [4]orb.Point {
	cell := s2.CellFromCellID(c)
	var out [4]orb.Point
	for k := 0; k < 4; k++ {
		ll := s2.LatLngFromPoint(cell.Vertex(k))
		out[k] = orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()}
	}
	return out
}

// CellPolygon returns the closed counter-clockwise outline of the cell.
func (g Grid) CellPolygon(id traffic.CellID) (orb.Polygon, error) {
	c, err := toS2(id)
	if err != nil {
		return nil, err
	}
	v := vertices(c)
	return orb.Polygon{orb.Ring{v[0], v[1], v[2], v[3], v[0]}}, nil
}

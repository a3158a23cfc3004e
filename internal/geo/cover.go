package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// DefaultMaxCoveringCells bounds the number of cells in a region covering.
const DefaultMaxCoveringCells = 16

// CellRange is the inclusive range of ids at the grid level that fall
// inside one covering cell.
type CellRange struct {
	Cover    traffic.CellID
	Min, Max traffic.CellID
}

// PolygonFromRing builds a polygon from [lon, lat] pairs. The ring is
// closed if needed and at least three distinct vertices are required.
func PolygonFromRing(coords [][2]float64) (orb.Polygon, error) {
	ring := make(orb.Ring, 0, len(coords)+1)
	for _, c := range coords {
		if c[0] < -180 || c[0] > 180 || c[1] < -90 || c[1] > 90 {
			return nil, fmt.Errorf("%w: coordinate %v out of range", traffic.ErrInvalidArgument, c)
		}
		ring = append(ring, orb.Point{c[0], c[1]})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return nil, fmt.Errorf("%w: polygon needs at least 3 vertices", traffic.ErrInvalidArgument)
	}
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	return orb.Polygon{ring}, nil
}

func loopFromPolygon(poly orb.Polygon) (*s2.Loop, error) {
	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, fmt.Errorf("%w: empty polygon", traffic.ErrInvalidArgument)
	}
	shell := poly[0].Clone()
	if shell.Orientation() == orb.CW {
		shell.Reverse()
	}
	pts := make([]s2.Point, 0, len(shell)-1)
	for _, p := range shell[:len(shell)-1] {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0])))
	}
	loop := s2.LoopFromPoints(pts)
	if err := loop.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", traffic.ErrInvalidArgument, err)
	}
	loop.Normalize()
	return loop, nil
}

// Cover returns the covering cells of the polygon's outer ring, at most
// maxCells of them and none finer than the grid level, each with the range
// of grid-level ids it spans.
func (g Grid) Cover(poly orb.Polygon, maxCells int) ([]CellRange, error) {
	loop, err := loopFromPolygon(poly)
	if err != nil {
		return nil, err
	}
	if maxCells <= 0 {
		maxCells = DefaultMaxCoveringCells
	}
	coverer := &s2.RegionCoverer{MinLevel: 0, MaxLevel: g.Level, LevelMod: 1, MaxCells: maxCells}
	covering := coverer.Covering(loop)

	ranges := make([]CellRange, 0, len(covering))
	for _, c := range covering {
		ranges = append(ranges, CellRange{
			Cover: traffic.CellID(c),
			Min:   traffic.CellID(c.ChildBeginAtLevel(g.Level)),
			Max:   traffic.CellID(c.ChildEndAtLevel(g.Level).Prev()),
		})
	}
	return ranges, nil
}

// Contains reports whether the cell centre lies inside the polygon.
func (g Grid) Contains(poly orb.Polygon, id traffic.CellID) (bool, error) {
	lon, lat, err := g.CellCenter(id)
	if err != nil {
		return false, err
	}
	return planar.PolygonContains(poly, orb.Point{lon, lat}), nil
}

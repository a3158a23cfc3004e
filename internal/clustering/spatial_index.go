package clustering

import "math"

// maxGridCoord bounds cell coordinates so float to int conversion stays
// exact. Point sets spread wider than this relative to eps are searched
// exhaustively instead.
const maxGridCoord = 1 << 40

type gridKey struct {
	x, y, z int64
}

// SpatialIndex buckets points into a regular 3-D grid so that a radius
// query only has to visit the 27 cells around the query point.
// CellSize should match the DBSCAN eps.
type SpatialIndex struct {
	CellSize   float64
	Grid       map[gridKey][]int
	points     []Point3D
	bruteForce bool
}

// NewSpatialIndex creates an index over points with the given cell size.
func NewSpatialIndex(points []Point3D, cellSize float64) *SpatialIndex {
	si := &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[gridKey][]int, len(points)/4+1),
		points:   points,
	}
	for _, p := range points {
		if !si.fits(p) {
			si.bruteForce = true
			si.Grid = nil
			return si
		}
	}
	for i, p := range points {
		k := si.key(p)
		si.Grid[k] = append(si.Grid[k], i)
	}
	return si
}

func (si *SpatialIndex) fits(p Point3D) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		v := math.Abs(c / si.CellSize)
		if math.IsNaN(v) || v >= maxGridCoord {
			return false
		}
	}
	return true
}

func (si *SpatialIndex) key(p Point3D) gridKey {
	return gridKey{
		x: int64(math.Floor(p.X / si.CellSize)),
		y: int64(math.Floor(p.Y / si.CellSize)),
		z: int64(math.Floor(p.Z / si.CellSize)),
	}
}

func within(a, b Point3D, eps2 float64) bool {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx+dy*dy+dz*dz <= eps2
}

// RegionQuery returns the indices of all points within eps of points[idx],
// including idx itself, in ascending cell then insertion order.
func (si *SpatialIndex) RegionQuery(idx int, eps float64) []int {
	p := si.points[idx]
	eps2 := eps * eps
	var neighbors []int

	if si.bruteForce {
		for i, q := range si.points {
			if within(p, q, eps2) {
				neighbors = append(neighbors, i)
			}
		}
		return neighbors
	}

	base := si.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				k := gridKey{base.x + dx, base.y + dy, base.z + dz}
				for _, candidate := range si.Grid[k] {
					if within(p, si.points[candidate], eps2) {
						neighbors = append(neighbors, candidate)
					}
				}
			}
		}
	}
	return neighbors
}

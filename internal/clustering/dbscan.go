package clustering

import (
	"fmt"
	"math"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// Noise labels a point that no core point reaches.
const Noise = -1

// DefaultMinNeighbors is the neighbour count used when callers do not
// choose one.
const DefaultMinNeighbors = 6

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps    float64 // Neighbourhood radius in normalized units
	MinPts int     // Other points required within Eps for a core point
}

// Validate checks that params can drive a clustering run.
func (p DBSCANParams) Validate() error {
	if !(p.Eps > 0) || math.IsInf(p.Eps, 1) {
		return fmt.Errorf("%w: eps must be positive and finite, got %v", traffic.ErrInvalidArgument, p.Eps)
	}
	if p.MinPts < 1 {
		return fmt.Errorf("%w: min points must be at least 1, got %d", traffic.ErrInvalidArgument, p.MinPts)
	}
	return nil
}

// DBSCAN labels every point with a cluster id in 0..k-1, numbered in
// discovery order, or Noise.
//
// A point is core when at least MinPts other points lie within Eps. Points
// are visited in index order, so a border point within reach of two
// clusters belongs to the one whose expansion reaches it first.
func DBSCAN(points []Point3D, params DBSCANParams) ([]int, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	n := len(points)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0

	si := NewSpatialIndex(points, params.Eps)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		neighbors := si.RegionQuery(i, params.Eps)
		if len(neighbors)-1 < params.MinPts {
			labels[i] = -1
			continue
		}

		clusterID++
		expandCluster(si, labels, i, neighbors, clusterID, params)
	}

	for i, l := range labels {
		if l > 0 {
			labels[i] = l - 1
		} else {
			labels[i] = Noise
		}
	}
	return labels, nil
}

// expandCluster grows a cluster from a core point.
func expandCluster(si *SpatialIndex, labels []int, seedIdx int, neighbors []int, clusterID int, params DBSCANParams) {
	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID
		next := si.RegionQuery(idx, params.Eps)
		if len(next)-1 >= params.MinPts {
			neighbors = append(neighbors, next...)
		}
	}
}

// Groups converts labels into point-index groups, one per cluster id in
// ascending order. When includeNoise is set and any point is noise, the
// noise points form one extra group at the end.
func Groups(labels []int, includeNoise bool) [][]int {
	maxID := -1
	for _, l := range labels {
		if l > maxID {
			maxID = l
		}
	}
	groups := make([][]int, maxID+1)
	var noise []int
	for i, l := range labels {
		if l == Noise {
			noise = append(noise, i)
			continue
		}
		groups[l] = append(groups[l], i)
	}
	if includeNoise && len(noise) > 0 {
		groups = append(groups, noise)
	}
	return groups
}

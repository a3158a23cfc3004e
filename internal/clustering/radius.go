package clustering

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// RadiusSelection is the outcome of automatic eps selection. KDistances is
// kept so the curve can be charted.
type RadiusSelection struct {
	Eps        float64
	K          int
	KDistances []float64
	KneeIndex  int
}

// KDistances returns, sorted ascending, the distance from every point to its
// k-th nearest other point. k is capped at len(points)-1; a single point
// yields a distance of 0.
func KDistances(points []Point3D, k int) ([]float64, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", traffic.ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", traffic.ErrInvalidArgument, k)
	}
	if len(points) == 1 {
		return []float64{0}, nil
	}
	if k > len(points)-1 {
		k = len(points) - 1
	}

	// kdtree.New reorders its input.
	data := make(kdtree.Points, len(points))
	for i, p := range points {
		data[i] = kdtree.Point(p.Coords())
	}
	tree := kdtree.New(data, false)

	dists := make([]float64, len(points))
	for i, p := range points {
		// The query point finds itself at distance zero, so keep k+1.
		keeper := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keeper, kdtree.Point(p.Coords()))

		var maxSq float64
		for _, c := range keeper.Heap {
			if c.Comparable != nil && c.Dist > maxSq {
				maxSq = c.Dist
			}
		}
		dists[i] = math.Sqrt(maxSq)
	}
	sort.Float64s(dists)
	return dists, nil
}

// KneeIndex locates the knee of an ascending curve: both axes are scaled to
// [0, 1] and the interior point furthest from the chord between the end
// points wins. Fewer than three values select the last one; a flat curve
// selects the first.
func KneeIndex(sorted []float64) int {
	n := len(sorted)
	if n == 0 {
		return -1
	}
	if n < 3 {
		return n - 1
	}
	lo, hi := sorted[0], sorted[n-1]
	if hi-lo == 0 {
		return 0
	}

	// With both axes in [0, 1] the chord runs from (0, 0) to (1, 1), so the
	// perpendicular distance is |x - y| / sqrt(2).
	dist := make([]float64, n-2)
	for i := 1; i < n-1; i++ {
		x := float64(i) / float64(n-1)
		y := (sorted[i] - lo) / (hi - lo)
		dist[i-1] = math.Abs(x-y) / math.Sqrt2
	}
	return floats.MaxIdx(dist) + 1
}

// KneeValue returns the value at KneeIndex.
func KneeValue(sorted []float64) (float64, error) {
	idx := KneeIndex(sorted)
	if idx < 0 {
		return 0, fmt.Errorf("%w: empty distance curve", traffic.ErrInvalidArgument)
	}
	return sorted[idx], nil
}

// SelectRadius picks eps as the knee of the minNeighbors-distance curve.
func SelectRadius(points []Point3D, minNeighbors int) (RadiusSelection, error) {
	dists, err := KDistances(points, minNeighbors)
	if err != nil {
		return RadiusSelection{}, err
	}
	eps, err := KneeValue(dists)
	if err != nil {
		return RadiusSelection{}, err
	}
	return RadiusSelection{
		Eps:        eps,
		K:          minNeighbors,
		KDistances: dists,
		KneeIndex:  KneeIndex(dists),
	}, nil
}

package clustering

// Result is the output of one DBSCANClusterer run.
type Result struct {
	Labels   []int
	Eps      float64
	Clusters int
	Noise    int
	// Radius is set when eps was selected automatically.
	Radius *RadiusSelection
}

// Groups returns the point-index groups of the run.
func (r *Result) Groups(includeNoise bool) [][]int {
	return Groups(r.Labels, includeNoise)
}

// DBSCANClusterer runs DBSCAN over normalized points. A non-positive Eps
// asks the clusterer to choose one from the k-distance knee.
type DBSCANClusterer struct {
	params DBSCANParams
}

// NewDBSCANClusterer creates a new DBSCAN clusterer with the specified parameters.
func NewDBSCANClusterer(eps float64, minPts int) *DBSCANClusterer {
	return &DBSCANClusterer{params: DBSCANParams{Eps: eps, MinPts: minPts}}
}

// NewDefaultDBSCANClusterer creates a clusterer with automatic eps and
// DefaultMinNeighbors.
func NewDefaultDBSCANClusterer() *DBSCANClusterer {
	return NewDBSCANClusterer(0, DefaultMinNeighbors)
}

// Cluster labels the points. Empty input yields an empty result.
func (c *DBSCANClusterer) Cluster(points []Point3D) (*Result, error) {
	params := c.params
	res := &Result{}
	if len(points) == 0 {
		return res, nil
	}

	if params.Eps <= 0 {
		sel, err := SelectRadius(points, params.MinPts)
		if err != nil {
			return nil, err
		}
		res.Radius = &sel
		params.Eps = sel.Eps
	}
	res.Eps = params.Eps

	// Coincident points select a radius of 0.
	if params.Eps == 0 {
		params.Eps = minEps
	}

	labels, err := DBSCAN(points, params)
	if err != nil {
		return nil, err
	}
	res.Labels = labels
	for _, l := range labels {
		if l == Noise {
			res.Noise++
		} else if l+1 > res.Clusters {
			res.Clusters = l + 1
		}
	}
	return res, nil
}

// minEps stands in for a selected radius of zero.
const minEps = 1e-9

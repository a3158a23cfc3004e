// Package anomaly runs the detection pipeline: coverage filtering,
// seasonal outlier detection, space-time projection, robust
// normalization, radius selection, DBSCAN and report assembly.
//
// The pipeline is pure. It does not fetch or persist anything; callers
// hand it observations and receive features.
package anomaly

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/anomaly.report/internal/clustering"
	"github.com/banshee-data/anomaly.report/internal/detection"
	"github.com/banshee-data/anomaly.report/internal/monitoring"
	"github.com/banshee-data/anomaly.report/internal/report"
	"github.com/banshee-data/anomaly.report/internal/timeutil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

var logf = monitoring.Prefixed("anomaly")

// Window is the inclusive hourly request window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Result is the outcome of one run. An empty Features slice with a nil
// error is a valid "nothing unusual" answer.
type Result struct {
	Features     []report.AnomalyFeature
	CellsKept    int
	CellsDropped int
	Outliers     int
	Clusters     int
	Noise        int
	Eps          float64
	Radius       *clustering.RadiusSelection
	Clustered    bool
}

// Geometry is the cell lookup the pipeline needs: centres for projection
// and unions for assembly.
type Geometry interface {
	clustering.CenterLookup
	report.GeometryLookup
}

// Detector runs the pipeline against one geometry backend.
type Detector struct {
	geometry Geometry
	metrics  *monitoring.Metrics
	clock    timeutil.Clock
}

// NewDetector creates a detector. metrics may be nil.
func NewDetector(geometry Geometry, metrics *monitoring.Metrics) *Detector {
	return &Detector{geometry: geometry, metrics: metrics, clock: timeutil.RealClock{}}
}

// WithClock replaces the clock used to time runs.
func (d *Detector) WithClock(c timeutil.Clock) *Detector {
	d.clock = c
	return d
}

// Run executes the pipeline.
func (d *Detector) Run(observations []traffic.Observation, w Window, p Params) (*Result, error) {
	start := d.clock.Now()
	res, err := d.run(observations, w, p)

	outcome := monitoring.OutcomeOK
	var asmErr *report.AssemblyError
	switch {
	case errors.Is(err, traffic.ErrInvalidArgument):
		outcome = monitoring.OutcomeInvalid
	case errors.As(err, &asmErr):
		outcome = monitoring.OutcomeAssembly
	case err != nil:
		outcome = monitoring.OutcomeError
	case len(res.Features) == 0:
		outcome = monitoring.OutcomeEmpty
	}
	if res == nil {
		d.metrics.ObserveRun(p.Metric.String(), outcome, d.clock.Since(start), 0, 0, 0)
	} else {
		d.metrics.ObserveRun(p.Metric.String(), outcome, d.clock.Since(start), res.Outliers, res.Clusters, res.CellsDropped)
	}
	return res, err
}

func (d *Detector) run(observations []traffic.Observation, w Window, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	slots := traffic.ExpectedSlots(w.Start, w.End)
	if slots == 0 {
		return nil, fmt.Errorf("%w: window end precedes start", traffic.ErrInvalidArgument)
	}

	res := &Result{}
	if len(observations) == 0 {
		logf("no observations for %s window, nothing to do", p.Metric)
		return res, nil
	}

	cells, err := traffic.BuildCellSeries(observations, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	kept, err := detection.FilterByCoverage(cells, p.MinCoverage, slots)
	if err != nil {
		return nil, err
	}
	res.CellsKept = len(kept)
	res.CellsDropped = len(cells) - len(kept)

	outliers, err := detection.ExtractOutliers(kept, p.Metric, p.Threshold)
	if err != nil {
		return nil, err
	}
	res.Outliers = len(outliers)
	logf("%s: %d/%d cells kept, %d outliers at threshold %.2f",
		p.Metric, res.CellsKept, len(cells), res.Outliers, p.Threshold)

	if len(outliers) == 0 {
		return res, nil
	}

	assembler := report.NewAssembler(d.geometry)

	// No point can be core with this few outliers.
	if len(outliers) < p.MinNeighbors+1 {
		res.Noise = len(outliers)
		if !p.IncludeNoise {
			return res, nil
		}
		res.Features, err = assembler.Assemble([][]detection.Outlier{outliers}, true)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	samples := make([]clustering.Sample, len(outliers))
	for i, o := range outliers {
		samples[i] = clustering.Sample{CellID: o.CellID, Time: o.Timestamp}
	}
	projected, err := clustering.NewProjector(d.geometry, p.MetersPerHour).ProjectBatch(samples)
	if err != nil {
		return nil, err
	}
	normalized, err := clustering.RobustNormalize(projected)
	if err != nil {
		return nil, err
	}

	clustered, err := clustering.NewDBSCANClusterer(p.Eps, p.MinNeighbors).Cluster(normalized)
	if err != nil {
		return nil, err
	}
	res.Clustered = true
	res.Eps = clustered.Eps
	res.Radius = clustered.Radius
	res.Clusters = clustered.Clusters
	res.Noise = clustered.Noise
	logf("%s: eps %.4f, %d clusters, %d noise", p.Metric, res.Eps, res.Clusters, res.Noise)

	groups := clustered.Groups(p.IncludeNoise)
	members := make([][]detection.Outlier, len(groups))
	for g, idx := range groups {
		members[g] = make([]detection.Outlier, len(idx))
		for j, i := range idx {
			members[g][j] = outliers[i]
		}
	}
	lastIsNoise := p.IncludeNoise && clustered.Noise > 0

	res.Features, err = assembler.Assemble(members, lastIsNoise)
	if err != nil {
		return nil, err
	}
	return res, nil
}

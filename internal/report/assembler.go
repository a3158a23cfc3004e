// Package report turns clustered outliers into map features.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/banshee-data/anomaly.report/internal/detection"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// GeometryLookup merges a set of cells into a single polygon.
type GeometryLookup interface {
	UnionCells(ids []traffic.CellID) (orb.Polygon, error)
}

// AnomalyFeature is the footprint of one cluster at one hour.
type AnomalyFeature struct {
	ClusterID int
	Timestamp time.Time
	Geometry  orb.Polygon
	Cells     []traffic.CellID
	MaxScore  float64
	AreaM2    float64
	Noise     bool
}

// AssemblyError reports a cluster whose cells at one hour could not be
// merged into a polygon.
type AssemblyError struct {
	ClusterID int
	Timestamp time.Time
	Err       error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("cluster %d at %s: %v", e.ClusterID, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Assembler builds features from clusters of outliers.
type Assembler struct {
	geometry GeometryLookup
}

// NewAssembler creates an assembler backed by the given geometry lookup.
func NewAssembler(geometry GeometryLookup) *Assembler {
	return &Assembler{geometry: geometry}
}

type hourGroup struct {
	ts       time.Time
	cells    map[traffic.CellID]struct{}
	scores   map[traffic.CellID]float64
	maxScore float64
}

// Assemble emits one feature per (cluster, hour) present among the
// members, ordered by cluster index then time. The cluster index is the
// position in clusters. When lastIsNoise is set the final group is
// flagged as noise and emits one single-cell feature per (cell, hour)
// in cell order. The first union failure aborts assembly with an
// *AssemblyError.
func (a *Assembler) Assemble(clusters [][]detection.Outlier, lastIsNoise bool) ([]AnomalyFeature, error) {
	var features []AnomalyFeature
	for clusterID, members := range clusters {
		noise := lastIsNoise && clusterID == len(clusters)-1

		byHour := make(map[int64]*hourGroup)
		for _, o := range members {
			key := o.Timestamp.Unix()
			g, ok := byHour[key]
			if !ok {
				g = &hourGroup{
					ts:     o.Timestamp.UTC(),
					cells:  make(map[traffic.CellID]struct{}),
					scores: make(map[traffic.CellID]float64),
				}
				byHour[key] = g
			}
			g.cells[o.CellID] = struct{}{}
			if o.Score > g.scores[o.CellID] {
				g.scores[o.CellID] = o.Score
			}
			if o.Score > g.maxScore {
				g.maxScore = o.Score
			}
		}

		hours := make([]int64, 0, len(byHour))
		for k := range byHour {
			hours = append(hours, k)
		}
		sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

		for _, h := range hours {
			g := byHour[h]
			cells := make([]traffic.CellID, 0, len(g.cells))
			for c := range g.cells {
				cells = append(cells, c)
			}
			sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

			// Noise cells are scattered, so each gets its own footprint.
			parts := [][]traffic.CellID{cells}
			if noise {
				parts = make([][]traffic.CellID, len(cells))
				for i, c := range cells {
					parts[i] = []traffic.CellID{c}
				}
			}
			for _, part := range parts {
				poly, err := a.geometry.UnionCells(part)
				if err != nil {
					return nil, &AssemblyError{ClusterID: clusterID, Timestamp: g.ts, Err: err}
				}
				maxScore := g.maxScore
				if noise {
					maxScore = g.scores[part[0]]
				}
				features = append(features, AnomalyFeature{
					ClusterID: clusterID,
					Timestamp: g.ts,
					Geometry:  poly,
					Cells:     part,
					MaxScore:  maxScore,
					AreaM2:    orbgeo.Area(poly),
					Noise:     noise,
				})
			}
		}
	}
	return features, nil
}

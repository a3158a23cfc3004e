// Package clustering groups outliers that are close in space and time.
//
// Outliers are projected into a local metric frame (x/y from cell centres,
// z from elapsed hours), rescaled per axis with median/IQR statistics and
// clustered with DBSCAN. When no radius is given one is chosen from the
// knee of the sorted k-distance curve.
package clustering

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

const (
	// MetersPerDegree is the length of one degree of latitude.
	MetersPerDegree = 111000.0
	// DefaultMetersPerHour scales elapsed hours onto the spatial axes.
	DefaultMetersPerHour = 40.0
)

// Point3D is a position in the projected space-time frame.
type Point3D struct {
	X, Y, Z float64
}

// Coords returns the point as a slice for the k-d tree and distance helpers.
func (p Point3D) Coords() []float64 {
	return []float64{p.X, p.Y, p.Z}
}

// Sample is the (cell, hour) pair of one outlier.
type Sample struct {
	CellID traffic.CellID
	Time   time.Time
}

// CenterLookup resolves a cell to the longitude and latitude of its centre.
type CenterLookup interface {
	CellCenter(id traffic.CellID) (lon, lat float64, err error)
}

// Projector maps samples into the local space-time frame.
type Projector struct {
	centers       CenterLookup
	metersPerHour float64
}

// NewProjector creates a projector. A non-positive metersPerHour falls back
// to DefaultMetersPerHour.
func NewProjector(centers CenterLookup, metersPerHour float64) *Projector {
	if metersPerHour <= 0 {
		metersPerHour = DefaultMetersPerHour
	}
	return &Projector{centers: centers, metersPerHour: metersPerHour}
}

// MetersPerHour returns the time scale in use.
func (p *Projector) MetersPerHour() float64 {
	return p.metersPerHour
}

type reference struct {
	lon, lat float64
	cosLat   float64
	time     time.Time
}

func (p *Projector) reference(s Sample) (reference, error) {
	lon, lat, err := p.centers.CellCenter(s.CellID)
	if err != nil {
		return reference{}, fmt.Errorf("reference cell %s: %w", s.CellID, err)
	}
	return reference{lon: lon, lat: lat, cosLat: math.Cos(lat * math.Pi / 180), time: s.Time}, nil
}

func (p *Projector) project(s Sample, ref reference) (Point3D, error) {
	lon, lat, err := p.centers.CellCenter(s.CellID)
	if err != nil {
		return Point3D{}, fmt.Errorf("cell %s: %w", s.CellID, err)
	}
	return Point3D{
		X: (lat - ref.lat) * MetersPerDegree,
		Y: (lon - ref.lon) * MetersPerDegree * ref.cosLat,
		Z: s.Time.Sub(ref.time).Hours() * p.metersPerHour,
	}, nil
}

// Project maps s relative to the reference sample ref.
func (p *Projector) Project(s, ref Sample) (Point3D, error) {
	r, err := p.reference(ref)
	if err != nil {
		return Point3D{}, err
	}
	return p.project(s, r)
}

// ProjectBatch projects every sample relative to the first one.
func (p *Projector) ProjectBatch(samples []Sample) ([]Point3D, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: cannot project an empty batch", traffic.ErrInvalidArgument)
	}
	ref, err := p.reference(samples[0])
	if err != nil {
		return nil, err
	}
	points := make([]Point3D, len(samples))
	for i, s := range samples {
		if points[i], err = p.project(s, ref); err != nil {
			return nil, err
		}
	}
	return points, nil
}

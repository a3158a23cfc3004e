package anomaly

import (
	"fmt"
	"math"

	"github.com/banshee-data/anomaly.report/internal/clustering"
	"github.com/banshee-data/anomaly.report/internal/detection"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// Params are the tunables of one detection run.
type Params struct {
	Metric        traffic.Metric `json:"dataType"`
	Threshold     float64        `json:"threshold"`
	MinCoverage   float64        `json:"minCoverage"`
	MinNeighbors  int            `json:"minNeighbors"`
	Eps           float64        `json:"eps"` // <= 0 selects eps automatically
	MetersPerHour float64        `json:"metersPerHour"`
	IncludeNoise  bool           `json:"includeNoise"`
}

// DefaultParams returns the defaults for metric.
func DefaultParams(metric traffic.Metric) Params {
	return Params{
		Metric:        metric,
		Threshold:     metric.DefaultThreshold(),
		MinCoverage:   detection.DefaultMinCoverage,
		MinNeighbors:  clustering.DefaultMinNeighbors,
		MetersPerHour: clustering.DefaultMetersPerHour,
	}
}

// Validate reports the first invalid field.
func (p Params) Validate() error {
	if !p.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %d", traffic.ErrInvalidArgument, int(p.Metric))
	}
	if !(p.Threshold > 0) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be positive, got %v", traffic.ErrInvalidArgument, p.Threshold)
	}
	if !(p.MinCoverage >= 0 && p.MinCoverage <= 1) {
		return fmt.Errorf("%w: min coverage must be in [0, 1], got %v", traffic.ErrInvalidArgument, p.MinCoverage)
	}
	if p.MinNeighbors < 1 {
		return fmt.Errorf("%w: min neighbors must be at least 1, got %d", traffic.ErrInvalidArgument, p.MinNeighbors)
	}
	if math.IsNaN(p.Eps) || math.IsInf(p.Eps, 0) {
		return fmt.Errorf("%w: eps must be finite, got %v", traffic.ErrInvalidArgument, p.Eps)
	}
	if !(p.MetersPerHour > 0) || math.IsInf(p.MetersPerHour, 0) {
		return fmt.Errorf("%w: meters per hour must be positive, got %v", traffic.ErrInvalidArgument, p.MetersPerHour)
	}
	return nil
}

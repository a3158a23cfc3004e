package detection

import (
	"fmt"
	"math"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// Hit is one flagged index of a series.
type Hit struct {
	Index int
	Value float64
	Score float64
}

// Outlier is an observation flagged by ExtractOutliers together with the
// metric value that was scored and its z-score.
type Outlier struct {
	traffic.Observation
	Value float64
	Score float64
}

// ScoreOutliers returns every index whose weekly z-score exceeds threshold,
// in ascending index order.
func ScoreOutliers(values []float64, threshold float64) ([]Hit, error) {
	if math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: threshold is NaN", traffic.ErrInvalidArgument)
	}
	profile, err := ComputeProfile(values, WeekPeriod)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for i, v := range values {
		score := profile.Score(i, v)
		// NaN compares false, so missing values and flat phases drop out here.
		if score > threshold {
			hits = append(hits, Hit{Index: i, Value: v, Score: score})
		}
	}
	return hits, nil
}

// FindOutliers returns the indices of values that deviate from their
// hour-of-week baseline by more than threshold standard deviations.
func FindOutliers(values []float64, threshold float64) ([]int, error) {
	hits, err := ScoreOutliers(values, threshold)
	if err != nil {
		return nil, err
	}
	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.Index
	}
	return indices, nil
}

// ExtractOutliers runs detection on every cell series for the given metric
// and returns the flagged observations ordered by cell id then time.
func ExtractOutliers(cells map[traffic.CellID]*traffic.CellSeries, metric traffic.Metric, threshold float64) ([]Outlier, error) {
	var outliers []Outlier
	for _, id := range traffic.SortedCellIDs(cells) {
		series := cells[id]
		if len(series.Slots) == 0 {
			continue
		}
		hits, err := ScoreOutliers(series.Values(metric), threshold)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", id, err)
		}
		for _, h := range hits {
			outliers = append(outliers, Outlier{
				Observation: *series.Slots[h.Index],
				Value:       h.Value,
				Score:       h.Score,
			})
		}
	}
	return outliers, nil
}

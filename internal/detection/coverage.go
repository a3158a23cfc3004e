package detection

import (
	"fmt"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// DefaultMinCoverage is the fraction of expected hourly slots a cell must
// have data for before its weekly baseline is trusted.
const DefaultMinCoverage = 0.85

// FilterByCoverage keeps only cells whose present-sample count reaches
// minFraction of expectedSlots. Cells below the threshold are dropped
// entirely; there is no interpolation fallback.
func FilterByCoverage(cells map[traffic.CellID]*traffic.CellSeries, minFraction float64, expectedSlots int) (map[traffic.CellID]*traffic.CellSeries, error) {
	if !(minFraction >= 0 && minFraction <= 1) {
		return nil, fmt.Errorf("%w: coverage fraction must be in [0, 1], got %v", traffic.ErrInvalidArgument, minFraction)
	}
	if expectedSlots <= 0 {
		return nil, fmt.Errorf("%w: expected slots must be positive, got %d", traffic.ErrInvalidArgument, expectedSlots)
	}

	required := minFraction * float64(expectedSlots)
	kept := make(map[traffic.CellID]*traffic.CellSeries, len(cells))
	for id, series := range cells {
		if float64(series.Present()) >= required {
			kept[id] = series
		}
	}
	return kept, nil
}

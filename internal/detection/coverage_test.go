package detection

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func seriesWithPresent(id traffic.CellID, slots, present int) *traffic.CellSeries {
	s := &traffic.CellSeries{CellID: id, Slots: make([]*traffic.Observation, slots)}
	for i := 0; i < present; i++ {
		s.Slots[i] = &traffic.Observation{CellID: id, Timestamp: time.Unix(int64(i)*3600, 0).UTC()}
	}
	return s
}

func TestFilterByCoverage(t *testing.T) {
	cells := map[traffic.CellID]*traffic.CellSeries{
		1: seriesWithPresent(1, 100, 80),
		2: seriesWithPresent(2, 100, 86),
		3: seriesWithPresent(3, 100, 85),
	}

	kept, err := FilterByCoverage(cells, DefaultMinCoverage, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := kept[1]; ok {
		t.Errorf("cell with 80/100 slots should be dropped")
	}
	if _, ok := kept[2]; !ok {
		t.Errorf("cell with 86/100 slots should be kept")
	}
	if _, ok := kept[3]; !ok {
		t.Errorf("cell at exactly the threshold should be kept")
	}
}

func TestFilterByCoverageInvalid(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		slots    int
	}{
		{"fraction above one", 1.2, 10},
		{"negative fraction", -0.1, 10},
		{"zero slots", 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FilterByCoverage(nil, tt.fraction, tt.slots)
			if !errors.Is(err, traffic.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

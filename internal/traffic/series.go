package traffic

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ExpectedSlots returns the number of hourly slots between start and end,
// both inclusive, after truncating both to the hour. It returns 0 when
// end precedes start.
func ExpectedSlots(start, end time.Time) int {
	s := start.UTC().Truncate(time.Hour)
	e := end.UTC().Truncate(time.Hour)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s)/time.Hour) + 1
}

// HourlyGrid returns every hour between start and end inclusive.
func HourlyGrid(start, end time.Time) ([]time.Time, error) {
	n := ExpectedSlots(start, end)
	if n == 0 {
		return nil, fmt.Errorf("%w: window end %s precedes start %s",
			ErrInvalidArgument, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	s := start.UTC().Truncate(time.Hour)
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = s.Add(time.Duration(i) * time.Hour)
	}
	return grid, nil
}

// CellSeries is the hourly series of one cell aligned to a request grid.
// Missing hours are nil so slot i always corresponds to Start + i hours
// and phase buckets stay stable.
type CellSeries struct {
	CellID CellID
	Start  time.Time
	Slots  []*Observation
}

// Present counts the non-missing slots.
func (s *CellSeries) Present() int {
	n := 0
	for _, o := range s.Slots {
		if o != nil {
			n++
		}
	}
	return n
}

// Values extracts the metric for every slot, NaN where the slot is missing.
func (s *CellSeries) Values(m Metric) []float64 {
	values := make([]float64, len(s.Slots))
	for i, o := range s.Slots {
		if o == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = m.Value(*o)
	}
	return values
}

// BuildCellSeries groups observations by cell and aligns each group to
// the hourly grid of [start, end]. Observations outside the window are
// ignored; for a repeated (cell, hour) the later observation in the input
// wins.
func BuildCellSeries(observations []Observation, start, end time.Time) (map[CellID]*CellSeries, error) {
	n := ExpectedSlots(start, end)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty window", ErrInvalidArgument)
	}
	gridStart := start.UTC().Truncate(time.Hour)

	series := make(map[CellID]*CellSeries)
	for i := range observations {
		o := observations[i]
		ts := o.Timestamp.UTC().Truncate(time.Hour)
		if ts.Before(gridStart) {
			continue
		}
		slot := int(ts.Sub(gridStart) / time.Hour)
		if slot >= n {
			continue
		}
		cs, ok := series[o.CellID]
		if !ok {
			cs = &CellSeries{CellID: o.CellID, Start: gridStart, Slots: make([]*Observation, n)}
			series[o.CellID] = cs
		}
		o.Timestamp = ts
		cs.Slots[slot] = &o
	}
	return series, nil
}

// SortedCellIDs returns the keys of a series map in ascending order.
func SortedCellIDs(series map[CellID]*CellSeries) []CellID {
	ids := make([]CellID, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

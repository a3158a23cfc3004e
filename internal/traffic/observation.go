package traffic

import (
	"fmt"
	"strconv"
	"time"
)

// CellID identifies a fixed-resolution spatial cell. The engine treats it
// as opaque; internal/geo interprets it as an S2 cell id.
type CellID uint64

// String renders the id as the 16-digit hex form used by the store.
func (c CellID) String() string {
	return fmt.Sprintf("%016x", uint64(c))
}

// ParseCellID parses the 16-digit hex form produced by String.
func ParseCellID(s string) (CellID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cell id %q: %w", s, err)
	}
	return CellID(v), nil
}

// MarshalText encodes the id in its hex form so JSON clients without
// 64-bit integers keep it intact.
func (c CellID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CellID) UnmarshalText(b []byte) error {
	id, err := ParseCellID(string(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	*c = id
	return nil
}

// Traffic is the set of measurements recorded for one cell in one hour.
type Traffic struct {
	TotalDistanceM   float64 `json:"total_distance_m"`
	SpeedKmH         float64 `json:"speed_kmh"`
	FreeFlowSpeedKmH float64 `json:"free_flow_speed_kmh"`
}

// Congestion is the relative speed loss against free flow. It is 0 when
// no free-flow speed is known.
func (t Traffic) Congestion() float64 {
	if t.FreeFlowSpeedKmH <= 0 {
		return 0
	}
	return (t.FreeFlowSpeedKmH - t.SpeedKmH) / t.FreeFlowSpeedKmH
}

// Observation is one cell-hour of traffic. Timestamps are hour aligned
// and in UTC.
type Observation struct {
	CellID    CellID    `json:"cell_id"`
	Timestamp time.Time `json:"timestamp"`
	Traffic   Traffic   `json:"traffic"`
}

func (o Observation) String() string {
	return fmt.Sprintf("cell=%s t=%s distance=%.1fm speed=%.1fkm/h free_flow=%.1fkm/h",
		o.CellID, o.Timestamp.Format(time.RFC3339),
		o.Traffic.TotalDistanceM, o.Traffic.SpeedKmH, o.Traffic.FreeFlowSpeedKmH)
}

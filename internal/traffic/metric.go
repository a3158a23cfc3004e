package traffic

import (
	"fmt"
	"strings"
)

// Metric selects which scalar of an Observation feeds outlier detection.
type Metric int

const (
	TotalDistance Metric = iota
	Speed
	FreeFlowSpeed
	Congestion
)

// Metrics lists every supported metric in declaration order.
var Metrics = []Metric{TotalDistance, Speed, FreeFlowSpeed, Congestion}

var metricNames = map[Metric]string{
	TotalDistance: "TOTAL_DISTANCE_M",
	Speed:         "SPEED_KMH",
	FreeFlowSpeed: "FREE_FLOW_SPEED_KMH",
	Congestion:    "CONGESTION",
}

// Default z-score thresholds per metric. Distance and congestion swing
// more with ordinary demand than speed does.
var defaultThresholds = map[Metric]float64{
	TotalDistance: 2.5,
	Speed:         2.0,
	FreeFlowSpeed: 2.0,
	Congestion:    1.5,
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// Valid reports whether m is one of Metrics.
func (m Metric) Valid() bool {
	_, ok := metricNames[m]
	return ok
}

// Value extracts the metric from an observation.
func (m Metric) Value(o Observation) float64 {
	switch m {
	case TotalDistance:
		return o.Traffic.TotalDistanceM
	case Speed:
		return o.Traffic.SpeedKmH
	case FreeFlowSpeed:
		return o.Traffic.FreeFlowSpeedKmH
	case Congestion:
		return o.Traffic.Congestion()
	default:
		panic(fmt.Sprintf("traffic: unknown metric %d", int(m)))
	}
}

// DefaultThreshold returns the outlier threshold used when a request
// does not set one.
func (m Metric) DefaultThreshold() float64 {
	if t, ok := defaultThresholds[m]; ok {
		return t
	}
	return 2.0
}

// ParseMetric accepts the canonical names plus the legacy *_KHM spellings
// and lower case.
func ParseMetric(s string) (Metric, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.Replace(name, "_KHM", "_KMH", 1)
	for m, n := range metricNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, s)
}

func (m Metric) MarshalText() ([]byte, error) {
	if _, ok := metricNames[m]; !ok {
		return nil, fmt.Errorf("unknown metric %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(b []byte) error {
	parsed, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Package synth generates deterministic hourly traffic for a bounding box
// with optional incidents, for seeding a store and for end-to-end tests.
//
// Every cell follows the same weekly rhythm (rush hours, quieter
// weekends) scaled by a per-cell factor. Each week alternates a small
// multiplicative wobble so hour-of-week baselines have non-zero spread
// without any randomness. Random noise and missing hours are opt-in.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/banshee-data/anomaly.report/internal/detection"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

const (
	defaultStepDeg  = 0.005
	defaultWobble   = 0.02
	defaultFreeFlow = 60.0
)

// Incident depresses speed and distance for cells within RadiusM of
// Center during [Start, Start+Hours).
type Incident struct {
	Center      orb.Point
	RadiusM     float64
	Start       time.Time
	Hours       int
	SpeedFactor float64
}

func (i Incident) active(center orb.Point, ts time.Time) bool {
	if ts.Before(i.Start) || !ts.Before(i.Start.Add(time.Duration(i.Hours)*time.Hour)) {
		return false
	}
	return orbgeo.Distance(i.Center, center) <= i.RadiusM
}

// Config describes the synthetic region and window. Zero StepDeg, Wobble
// and FreeFlow take package defaults.
type Config struct {
	Grid      geo.Grid
	Bound     orb.Bound
	Start     time.Time
	Hours     int
	StepDeg   float64
	Wobble    float64
	Noise     float64 // relative amplitude of seeded uniform noise
	GapRate   float64 // probability that an hour is missing
	Seed      uint64
	FreeFlow  float64
	Incidents []Incident
}

// Cells returns the distinct grid cells whose centres fall inside the
// bound, sampled every StepDeg degrees, in id order.
func Cells(cfg Config) ([]traffic.CellID, error) {
	step := cfg.StepDeg
	if step <= 0 {
		step = defaultStepDeg
	}
	if cfg.Bound.Min.Lon() >= cfg.Bound.Max.Lon() || cfg.Bound.Min.Lat() >= cfg.Bound.Max.Lat() {
		return nil, fmt.Errorf("%w: empty bound %v", traffic.ErrInvalidArgument, cfg.Bound)
	}

	seen := make(map[traffic.CellID]struct{})
	for lat := cfg.Bound.Min.Lat(); lat <= cfg.Bound.Max.Lat(); lat += step {
		for lon := cfg.Bound.Min.Lon(); lon <= cfg.Bound.Max.Lon(); lon += step {
			id := cfg.Grid.CellAt(lon, lat)
			if _, ok := seen[id]; ok {
				continue
			}
			clon, clat, err := cfg.Grid.CellCenter(id)
			if err != nil {
				return nil, err
			}
			if cfg.Bound.Contains(orb.Point{clon, clat}) {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]traffic.CellID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Generate returns cfg.Hours hourly observations per cell starting at
// cfg.Start, minus any gaps, ordered by cell then time.
func Generate(cfg Config) ([]traffic.Observation, error) {
	if cfg.Hours <= 0 {
		return nil, fmt.Errorf("%w: hours must be positive, got %d", traffic.ErrInvalidArgument, cfg.Hours)
	}
	if cfg.GapRate < 0 || cfg.GapRate >= 1 {
		return nil, fmt.Errorf("%w: gap rate must be in [0, 1), got %v", traffic.ErrInvalidArgument, cfg.GapRate)
	}
	cells, err := Cells(cfg)
	if err != nil {
		return nil, err
	}
	wobble := cfg.Wobble
	if wobble == 0 {
		wobble = defaultWobble
	}
	freeFlow := cfg.FreeFlow
	if freeFlow <= 0 {
		freeFlow = defaultFreeFlow
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	start := cfg.Start.UTC().Truncate(time.Hour)

	obs := make([]traffic.Observation, 0, len(cells)*cfg.Hours)
	for ci, id := range cells {
		lon, lat, err := cfg.Grid.CellCenter(id)
		if err != nil {
			return nil, err
		}
		center := orb.Point{lon, lat}
		// Spread cells between quiet side streets and busy arterials.
		scale := 0.6 + 0.8*float64(ci%5)/4

		for h := 0; h < cfg.Hours; h++ {
			ts := start.Add(time.Duration(h) * time.Hour)
			if cfg.GapRate > 0 && rng.Float64() < cfg.GapRate {
				continue
			}
			load := weeklyLoad(ts)
			factor := 1 + wobble
			if (h/detection.WeekPeriod)%2 == 1 {
				factor = 1 - wobble
			}
			if cfg.Noise > 0 {
				factor *= 1 + cfg.Noise*(2*rng.Float64()-1)
			}

			speed := freeFlow * (1 - 0.45*load) * factor
			distance := 4000 * scale * (0.2 + load) * factor
			for _, inc := range cfg.Incidents {
				if inc.active(center, ts) {
					speed *= inc.SpeedFactor
					distance *= inc.SpeedFactor
				}
			}
			obs = append(obs, traffic.Observation{
				CellID:    id,
				Timestamp: ts,
				Traffic: traffic.Traffic{
					TotalDistanceM:   distance,
					SpeedKmH:         speed,
					FreeFlowSpeedKmH: freeFlow,
				},
			})
		}
	}
	return obs, nil
}

// weeklyLoad is the relative demand in [0, 1] for the hour of week.
func weeklyLoad(ts time.Time) float64 {
	hour := float64(ts.Hour())
	morning := math.Exp(-math.Pow(hour-8, 2) / 4)
	evening := math.Exp(-math.Pow(hour-17.5, 2) / 5)
	load := 0.15 + 0.85*math.Max(morning, evening)
	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		load = 0.1 + 0.5*math.Exp(-math.Pow(hour-14, 2)/18)
	}
	return load
}

// Package detection finds weekly-seasonal outliers in per-cell hourly
// traffic series.
//
// A series is bucketed by phase (hour of week), each phase gets a mean and
// population standard deviation over its present samples, and a sample is
// an outlier when its z-score against its phase exceeds a threshold.
// Missing samples and phases without variance never produce outliers.
package detection

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// WeekPeriod is the number of hourly phases in a week.
const WeekPeriod = 168

// Profile holds per-phase statistics. Phases with no present samples have
// NaN mean and NaN std.
type Profile struct {
	Period int
	Mean   []float64
	Std    []float64
}

// ComputeProfile buckets values by index mod period and computes the mean
// and population standard deviation of the non-NaN values in each bucket.
func ComputeProfile(values []float64, period int) (Profile, error) {
	if len(values) == 0 {
		return Profile{}, fmt.Errorf("%w: values must not be empty", traffic.ErrInvalidArgument)
	}
	if period <= 0 {
		return Profile{}, fmt.Errorf("%w: period must be greater than 0, got %d", traffic.ErrInvalidArgument, period)
	}

	buckets := make([][]float64, period)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		p := i % period
		buckets[p] = append(buckets[p], v)
	}

	profile := Profile{
		Period: period,
		Mean:   make([]float64, period),
		Std:    make([]float64, period),
	}
	for p, bucket := range buckets {
		switch len(bucket) {
		case 0:
			profile.Mean[p] = math.NaN()
			profile.Std[p] = math.NaN()
		case 1:
			profile.Mean[p] = bucket[0]
			profile.Std[p] = 0
		default:
			profile.Mean[p], profile.Std[p] = stat.PopMeanStdDev(bucket, nil)
		}
	}
	return profile, nil
}

// Score returns the z-score of v at index i, or NaN when the phase has no
// usable variance or v is missing.
func (p Profile) Score(i int, v float64) float64 {
	phase := i % p.Period
	std := p.Std[phase]
	if math.IsNaN(v) || !(std > 0) {
		return math.NaN()
	}
	return math.Abs(v-p.Mean[phase]) / std
}

package clustering

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// AxisScale is the centre and spread used to rescale one axis.
type AxisScale struct {
	Center float64
	Spread float64
}

// RobustScale computes the median and interquartile range of values.
// A zero spread is reported as 1 so the axis is only centred.
func RobustScale(values []float64) AxisScale {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
	if iqr == 0 {
		iqr = 1
	}
	return AxisScale{Center: median, Spread: iqr}
}

// RobustNormalize rescales each axis independently to
// (value - median) / IQR.
func RobustNormalize(points []Point3D) ([]Point3D, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: cannot normalize an empty point set", traffic.ErrInvalidArgument)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	sx, sy, sz := RobustScale(xs), RobustScale(ys), RobustScale(zs)

	out := make([]Point3D, len(points))
	for i, p := range points {
		out[i] = Point3D{
			X: (p.X - sx.Center) / sx.Spread,
			Y: (p.Y - sy.Center) / sy.Spread,
			Z: (p.Z - sz.Center) / sz.Spread,
		}
	}
	return out, nil
}

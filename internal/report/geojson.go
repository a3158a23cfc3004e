package report

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders features as GeoJSON. Every feature carries
// classId and time (RFC 3339) plus its cells, peak score, area and noise
// flag.
func FeatureCollection(features []AnomalyFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		cells := make([]string, len(f.Cells))
		for i, c := range f.Cells {
			cells[i] = c.String()
		}
		gf.Properties["classId"] = f.ClusterID
		gf.Properties["time"] = f.Timestamp.UTC().Format(time.RFC3339)
		gf.Properties["cells"] = cells
		gf.Properties["maxScore"] = f.MaxScore
		gf.Properties["areaM2"] = f.AreaM2
		gf.Properties["noise"] = f.Noise
		fc.Append(gf)
	}
	return fc
}

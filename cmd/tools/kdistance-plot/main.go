// Command kdistance-plot renders the k-distance curve of a stored region
// to a PNG, marking the knee and the selected eps.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/anomaly.report/internal/anomaly"
	"github.com/banshee-data/anomaly.report/internal/config"
	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/security"
	"github.com/banshee-data/anomaly.report/internal/traffic"
	"github.com/banshee-data/anomaly.report/internal/visualiser"
)

type options struct {
	DBPath       string
	ConfigPath   string
	Output       string
	BBox         [4]float64
	Start, End   time.Time
	Metric       traffic.Metric
	MinNeighbors int
}

func parseBBox(s string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat")
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("bbox value %d: %w", i, err)
		}
		b[i] = v
	}
	return b, nil
}

// run fetches the region, clusters it with automatic eps and writes the
// curve to o.Output.
func run(ctx context.Context, o options) (*anomaly.Result, error) {
	tuning := config.EmptyTuningConfig()
	if o.ConfigPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(o.ConfigPath); err != nil {
			return nil, err
		}
	}

	database, err := db.NewDB(o.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	poly, err := geo.PolygonFromRing([][2]float64{
		{o.BBox[0], o.BBox[1]}, {o.BBox[2], o.BBox[1]}, {o.BBox[2], o.BBox[3]}, {o.BBox[0], o.BBox[3]},
	})
	if err != nil {
		return nil, err
	}
	grid := geo.NewGrid(tuning.GetCellLevel())
	fetcher := db.NewFetcher(database, grid, db.FetchOptions{
		Concurrency: tuning.GetFetchConcurrency(),
		Timeout:     tuning.GetFetchTimeout(),
		MaxCells:    tuning.GetMaxCoveringCells(),
	}, nil)
	obs, err := fetcher.Fetch(ctx, poly, o.Start, o.End)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	p := tuning.Params(o.Metric)
	p.Eps = 0
	if o.MinNeighbors > 0 {
		p.MinNeighbors = o.MinNeighbors
	}
	res, err := anomaly.NewDetector(grid, nil).Run(obs, anomaly.Window{Start: o.Start, End: o.End}, p)
	if err != nil {
		return nil, err
	}
	if res.Radius == nil {
		return res, fmt.Errorf("%d outliers is too few for minNeighbors %d", res.Outliers, p.MinNeighbors)
	}

	if err := security.ValidateOutputPath(o.Output); err != nil {
		return nil, err
	}
	f, err := os.Create(o.Output)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%s k-distance, %d outliers, eps %.3f", o.Metric, res.Outliers, res.Eps)
	if err := visualiser.KDistancePlot(f, res.Radius, title, 8*vg.Inch, 5*vg.Inch); err != nil {
		f.Close()
		return nil, err
	}
	return res, f.Close()
}

func main() {
	var o options
	flag.StringVar(&o.DBPath, "db", "anomaly.db", "SQLite database")
	flag.StringVar(&o.ConfigPath, "config", "", "tuning config JSON")
	flag.StringVar(&o.Output, "o", "kdistance.png", "output PNG")
	bbox := flag.String("bbox", "", "minLon,minLat,maxLon,maxLat")
	start := flag.String("start", "", "window start (RFC3339)")
	end := flag.String("end", "", "window end (RFC3339)")
	dataType := flag.String("dataType", "SPEED_KMH", "metric to score")
	flag.IntVar(&o.MinNeighbors, "minNeighbors", 0, "override minNeighbors")
	flag.Parse()

	var err error
	if o.BBox, err = parseBBox(*bbox); err != nil {
		log.Fatal(err)
	}
	if o.Start, err = time.Parse(time.RFC3339, *start); err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	if o.End, err = time.Parse(time.RFC3339, *end); err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	if o.Metric, err = traffic.ParseMetric(*dataType); err != nil {
		log.Fatal(err)
	}

	res, err := run(context.Background(), o)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("✓ Created: %s (knee at rank %d, eps %.4f, %d clusters)", o.Output, res.Radius.KneeIndex, res.Eps, res.Clusters)
}

// Command gen-observations generates synthetic hourly cell observations
// with optional incidents and writes them to a database or a running
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/synth"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

type incidentFlags []synth.Incident

func (f *incidentFlags) String() string { return fmt.Sprintf("%d incidents", len(*f)) }

// Set parses lon,lat,radiusM,start,hours,factor.
func (f *incidentFlags) Set(s string) error {
	inc, err := parseIncident(s)
	if err != nil {
		return err
	}
	*f = append(*f, inc)
	return nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseBBox(s string) (orb.Bound, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("bbox: %w", err)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func parseIncident(s string) (synth.Incident, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return synth.Incident{}, fmt.Errorf("incident: want lon,lat,radiusM,start,hours,factor")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[3]))
	if err != nil {
		return synth.Incident{}, fmt.Errorf("incident start: %w", err)
	}
	nums, err := parseFloats(strings.Join([]string{parts[0], parts[1], parts[2], parts[4], parts[5]}, ","), 5)
	if err != nil {
		return synth.Incident{}, fmt.Errorf("incident: %w", err)
	}
	return synth.Incident{
		Center:      orb.Point{nums[0], nums[1]},
		RadiusM:     nums[2],
		Start:       start,
		Hours:       int(nums[3]),
		SpeedFactor: nums[4],
	}, nil
}

// post sends obs to the ingest endpoint in batches and returns the number
// of rows the server reports written.
func post(ctx context.Context, c httputil.HTTPClient, url string, obs []traffic.Observation, batch int) (int, error) {
	if batch <= 0 {
		batch = len(obs)
	}
	written := 0
	for i := 0; i < len(obs); i += batch {
		end := min(i+batch, len(obs))
		var resp struct {
			Written int `json:"written"`
		}
		if err := httputil.PostJSON(ctx, c, url, obs[i:end], &resp); err != nil {
			return written, fmt.Errorf("batch %d: %w", i/batch, err)
		}
		written += resp.Written
	}
	return written, nil
}

func main() {
	dbPath := flag.String("db", "", "write to this SQLite database")
	url := flag.String("url", "", "POST to this server instead, e.g. http://localhost:8080")
	bbox := flag.String("bbox", "-0.14,51.49,-0.06,51.53", "minLon,minLat,maxLon,maxLat")
	start := flag.String("start", "2025-01-06T00:00:00Z", "first hour (RFC3339)")
	weeks := flag.Int("weeks", 8, "number of weeks to generate")
	level := flag.Int("level", geo.DefaultLevel, "S2 cell level")
	seed := flag.Uint64("seed", 1, "random seed")
	noise := flag.Float64("noise", 0, "relative noise amplitude")
	gaps := flag.Float64("gaps", 0, "probability that an hour is missing")
	batch := flag.Int("batch", 5000, "observations per request with -url")
	var incidents incidentFlags
	flag.Var(&incidents, "incident", "lon,lat,radiusM,start,hours,factor (repeatable)")
	flag.Parse()

	if (*dbPath == "") == (*url == "") {
		log.Fatal("exactly one of -db or -url is required")
	}
	bound, err := parseBBox(*bbox)
	if err != nil {
		log.Fatal(err)
	}
	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}

	obs, err := synth.Generate(synth.Config{
		Grid:      geo.NewGrid(*level),
		Bound:     bound,
		Start:     t0,
		Hours:     *weeks * 168,
		Noise:     *noise,
		GapRate:   *gaps,
		Seed:      *seed,
		Incidents: incidents,
	})
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	log.Printf("generated %d observations with %d incidents", len(obs), len(incidents))

	ctx := context.Background()
	var n int
	if *url != "" {
		n, err = post(ctx, http.DefaultClient, strings.TrimSuffix(*url, "/")+"/api/observations", obs, *batch)
	} else {
		var database *db.DB
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		n, err = database.RecordObservations(ctx, obs)
	}
	if err != nil {
		log.Fatalf("write: %v", err)
	}
	log.Printf("✓ Wrote %d observations", n)
}

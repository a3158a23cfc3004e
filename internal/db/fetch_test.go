package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/monitoring"
	"github.com/banshee-data/anomaly.report/internal/timeutil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func TestFetcherFetch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	grid := geo.NewGrid(geo.DefaultLevel)

	inside := []traffic.CellID{
		grid.CellAt(-0.10, 51.50),
		grid.CellAt(-0.06, 51.52),
	}
	outside := grid.CellAt(0.40, 51.70)

	var obs []traffic.Observation
	// Three days of data so the window spans several daily queries.
	for h := 0; h < 72; h++ {
		ts := t0.Add(time.Duration(h) * time.Hour)
		for _, c := range append(inside, outside) {
			obs = append(obs, traffic.Observation{CellID: c, Timestamp: ts, Traffic: traffic.Traffic{SpeedKmH: 30}})
		}
	}
	if _, err := db.RecordObservations(ctx, obs); err != nil {
		t.Fatalf("RecordObservations failed: %v", err)
	}

	poly := orb.Polygon{{{-0.13, 51.48}, {-0.03, 51.48}, {-0.03, 51.54}, {-0.13, 51.54}, {-0.13, 51.48}}}
	metrics := monitoring.NewMetrics()
	f := NewFetcher(db, grid, FetchOptions{Concurrency: 4, Timeout: 10 * time.Second}, metrics)

	got, err := f.Fetch(ctx, poly, t0.Add(12*time.Hour), t0.Add(59*time.Hour))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if want := 2 * 48; len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
	for i, o := range got {
		if o.CellID == outside {
			t.Fatalf("observation %d is outside the polygon: %v", i, o)
		}
		if i > 0 {
			prev := got[i-1]
			if prev.CellID > o.CellID || (prev.CellID == o.CellID && !prev.Timestamp.Before(o.Timestamp)) {
				t.Fatalf("not sorted at %d: %v then %v", i, prev, o)
			}
		}
	}
}

func TestFetcherEmptyAndInvalid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	f := NewFetcher(db, geo.NewGrid(geo.DefaultLevel), FetchOptions{}, nil)
	poly := orb.Polygon{{{10, 10}, {10.1, 10}, {10.1, 10.1}, {10, 10.1}, {10, 10}}}

	got, err := f.Fetch(ctx, poly, t0, t0.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("empty region should not fail: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}

	if _, err := f.Fetch(ctx, poly, t0.Add(time.Hour), t0); !errors.Is(err, traffic.ErrInvalidArgument) {
		t.Errorf("reversed window: expected ErrInvalidArgument, got %v", err)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	db := setupTestDB(t)
	seedObservations(t, db)
	f := NewFetcher(db, geo.NewGrid(geo.DefaultLevel), FetchOptions{Concurrency: 2}, nil)
	poly := orb.Polygon{{{10, 10}, {10.1, 10}, {10.1, 10.1}, {10, 10.1}, {10, 10}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, poly, t0, t0.Add(48*time.Hour)); err == nil {
		t.Error("expected error from cancelled context")
	}
}

// elapsedClock reports a fixed duration for every Since call.
type elapsedClock struct {
	*timeutil.MockClock
	elapsed time.Duration
}

func (c elapsedClock) Since(time.Time) time.Duration { return c.elapsed }

func TestFetcherRecordsDurationFromClock(t *testing.T) {
	db := setupTestDB(t)
	metrics := monitoring.NewMetrics()
	clock := elapsedClock{MockClock: timeutil.NewMockClock(t0), elapsed: 1500 * time.Millisecond}
	f := NewFetcher(db, geo.NewGrid(geo.DefaultLevel), FetchOptions{Concurrency: 2}, metrics).WithClock(clock)

	poly := orb.Polygon{{{-0.13, 51.48}, {-0.03, 51.48}, {-0.03, 51.54}, {-0.13, 51.54}, {-0.13, 51.48}}}
	if _, err := f.Fetch(context.Background(), poly, t0, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"anomaly_fetch_duration_seconds_sum 1.5", "anomaly_fetch_duration_seconds_count 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

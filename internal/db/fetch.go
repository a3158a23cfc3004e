package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/monitoring"
	"github.com/banshee-data/anomaly.report/internal/timeutil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// FetchOptions bounds a region fetch.
type FetchOptions struct {
	Concurrency int
	Timeout     time.Duration
	MaxCells    int
}

// Fetcher loads the observations of a polygon and time window from the
// store. It splits the window into days and the polygon into covering
// cells and runs the resulting queries in parallel.
type Fetcher struct {
	db      *DB
	grid    geo.Grid
	opts    FetchOptions
	metrics *monitoring.Metrics
	clock   timeutil.Clock
}

// NewFetcher creates a fetcher. metrics may be nil.
func NewFetcher(db *DB, grid geo.Grid, opts FetchOptions, metrics *monitoring.Metrics) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Fetcher{db: db, grid: grid, opts: opts, metrics: metrics, clock: timeutil.RealClock{}}
}

// WithClock replaces the clock used to time fetches.
func (f *Fetcher) WithClock(c timeutil.Clock) *Fetcher {
	f.clock = c
	return f
}

type fetchTask struct {
	rng        geo.CellRange
	start, end time.Time
}

// Fetch returns the observations inside poly between start and end
// (inclusive, hour aligned), sorted by cell id then time. Observations
// whose cell centre falls outside the polygon are dropped. An empty
// result is not an error.
func (f *Fetcher) Fetch(ctx context.Context, poly orb.Polygon, start, end time.Time) ([]traffic.Observation, error) {
	began := f.clock.Now()
	obs, err := f.fetch(ctx, poly, start, end)
	f.metrics.ObserveFetch(f.clock.Since(began), err)
	return obs, err
}

func (f *Fetcher) fetch(ctx context.Context, poly orb.Polygon, start, end time.Time) ([]traffic.Observation, error) {
	start = start.UTC().Truncate(time.Hour)
	end = end.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: window end precedes start", traffic.ErrInvalidArgument)
	}
	ranges, err := f.grid.Cover(poly, f.opts.MaxCells)
	if err != nil {
		return nil, err
	}
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	var tasks []fetchTask
	for day := start; !day.After(end); day = day.Add(24 * time.Hour) {
		dayEnd := day.Add(23 * time.Hour)
		if dayEnd.After(end) {
			dayEnd = end
		}
		for _, r := range ranges {
			tasks = append(tasks, fetchTask{rng: r, start: day, end: dayEnd})
		}
	}

	var (
		mu  sync.Mutex
		all []traffic.Observation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			obs, err := f.db.ObservationsInRange(gctx, t.rng.Min, t.rng.Max, t.start, t.end)
			if err != nil {
				return fmt.Errorf("fetch %s %s: %w", t.rng.Cover, t.start.Format(time.DateOnly), err)
			}
			kept := obs[:0]
			for _, o := range obs {
				inside, err := f.grid.Contains(poly, o.CellID)
				if err != nil {
					return err
				}
				if inside {
					kept = append(kept, o)
				}
			}
			mu.Lock()
			all = append(all, kept...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CellID != all[j].CellID {
			return all[i].CellID < all[j].CellID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	logf("fetched %d observations from %d covering cells over %d queries", len(all), len(ranges), len(tasks))
	return all, nil
}

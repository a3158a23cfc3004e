// Package api serves the anomaly report HTTP API: detection runs over a
// polygon and window, observation ingest, saved reports and the debug
// charts.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/anomaly"
	"github.com/banshee-data/anomaly.report/internal/config"
	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/monitoring"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Prefixed("api")

// ObservationSource loads the observations of a region and window.
// *db.Fetcher is the production implementation.
type ObservationSource interface {
	Fetch(ctx context.Context, poly orb.Polygon, start, end time.Time) ([]traffic.Observation, error)
}

type Server struct {
	db       *db.DB
	source   ObservationSource
	detector *anomaly.Detector
	tuning   *config.TuningConfig
	grid     geo.Grid
	metrics  *monitoring.Metrics
}

// NewServer wires the store, fetcher and detector from the tuning config.
// metrics may be nil.
func NewServer(database *db.DB, tuning *config.TuningConfig, metrics *monitoring.Metrics) *Server {
	grid := geo.NewGrid(tuning.GetCellLevel())
	fetcher := db.NewFetcher(database, grid, db.FetchOptions{
		Concurrency: tuning.GetFetchConcurrency(),
		Timeout:     tuning.GetFetchTimeout(),
		MaxCells:    tuning.GetMaxCoveringCells(),
	}, metrics)
	return &Server{
		db:       database,
		source:   fetcher,
		detector: anomaly.NewDetector(grid, metrics),
		tuning:   tuning,
		grid:     grid,
		metrics:  metrics,
	}
}

// WithSource replaces the observation source.
func (s *Server) WithSource(src ObservationSource) *Server {
	s.source = src
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux registers the API routes. The caller attaches the debug routes
// separately with AttachDebugRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/observations", s.handleObservations)
	mux.HandleFunc("/api/reports", s.listReports)
	mux.HandleFunc("/api/reports/{id}", s.handleReport)
	mux.HandleFunc("/api/reports/{id}/geojson", s.downloadReport)
	mux.HandleFunc("/api/config", s.showConfig)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded on the runs counter.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeInvalid  = "invalid"
	OutcomeAssembly = "assembly_error"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors of one process. Methods are safe
// to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	outliers      prometheus.Histogram
	clusters      prometheus.Histogram
	cellsDropped  prometheus.Counter
	fetchDuration prometheus.Histogram
	fetchErrors   prometheus.Counter
	ingested      prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomaly_runs_total",
				Help: "Total number of detection runs by metric and outcome",
			},
			[]string{"metric", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anomaly_run_duration_seconds",
				Help:    "Wall time of detection runs",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"metric"},
		),
		outliers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anomaly_outliers_per_run",
			Help:    "Outliers found per detection run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		clusters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anomaly_clusters_per_run",
			Help:    "Clusters found per detection run",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		cellsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anomaly_cells_dropped_total",
			Help: "Cells discarded by the coverage filter",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "anomaly_fetch_duration_seconds",
			Help:    "Time spent loading observations for a request",
			Buckets: prometheus.DefBuckets,
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anomaly_fetch_errors_total",
			Help: "Failed observation fetches",
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anomaly_observations_ingested_total",
			Help: "Observations written to the store",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.outliers, m.clusters, m.cellsDropped,
		m.fetchDuration, m.fetchErrors, m.ingested,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRun records one detection run.
func (m *Metrics) ObserveRun(metric, outcome string, d time.Duration, outliers, clusters, cellsDropped int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(metric, outcome).Inc()
	m.runDuration.WithLabelValues(metric).Observe(d.Seconds())
	if outcome == OutcomeOK || outcome == OutcomeEmpty {
		m.outliers.Observe(float64(outliers))
		m.clusters.Observe(float64(clusters))
		m.cellsDropped.Add(float64(cellsDropped))
	}
}

// ObserveFetch records one observation fetch.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.Inc()
	}
}

// AddIngested counts observations written to the store.
func (m *Metrics) AddIngested(n int) {
	if m == nil {
		return
	}
	m.ingested.Add(float64(n))
}

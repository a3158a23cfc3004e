// Package traffic holds the data model shared by the anomaly engine:
// per-cell hourly observations, the metric selector and the hourly
// series aligned to a request window.
//
// Key types: Observation, Metric, CellSeries.
//
// No SQL or HTTP code is allowed in this package.
package traffic

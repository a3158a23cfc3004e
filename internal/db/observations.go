package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// RecordObservations upserts observations in a single transaction.
// Timestamps are truncated to the hour, so a later observation for the same
// cell-hour replaces an earlier one. Returns the number of rows written.
func (db *DB) RecordObservations(ctx context.Context, obs []traffic.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO traffic_observations (cell_id, ts, distance_m, speed_kmh, free_flow_speed_kmh)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (cell_id, ts) DO UPDATE SET
			distance_m = excluded.distance_m,
			speed_kmh = excluded.speed_kmh,
			free_flow_speed_kmh = excluded.free_flow_speed_kmh
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		ts := o.Timestamp.UTC().Truncate(time.Hour).Unix()
		if _, err := stmt.ExecContext(ctx, o.CellID.String(), ts,
			o.Traffic.TotalDistanceM, o.Traffic.SpeedKmH, o.Traffic.FreeFlowSpeedKmH); err != nil {
			return 0, fmt.Errorf("upsert observation %s: %w", o, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit observations: %w", err)
	}
	return len(obs), nil
}

// ObservationsInRange returns the observations whose cell id lies in
// [minCell, maxCell] and whose hour lies in [start, end], ordered by cell
// id then time. Cell ids are stored as fixed-width hex so text order
// matches numeric order.
func (db *DB) ObservationsInRange(ctx context.Context, minCell, maxCell traffic.CellID, start, end time.Time) ([]traffic.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT cell_id, ts, distance_m, speed_kmh, free_flow_speed_kmh
		FROM traffic_observations
		WHERE cell_id BETWEEN ? AND ?
		  AND ts BETWEEN ? AND ?
		ORDER BY cell_id, ts
	`, minCell.String(), maxCell.String(),
		start.UTC().Truncate(time.Hour).Unix(), end.UTC().Truncate(time.Hour).Unix())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []traffic.Observation
	for rows.Next() {
		var (
			cell string
			ts   int64
			o    traffic.Observation
		)
		if err := rows.Scan(&cell, &ts, &o.Traffic.TotalDistanceM, &o.Traffic.SpeedKmH, &o.Traffic.FreeFlowSpeedKmH); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		id, err := traffic.ParseCellID(cell)
		if err != nil {
			return nil, err
		}
		o.CellID = id
		o.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationCount returns the number of stored cell-hours.
func (db *DB) ObservationCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM traffic_observations").Scan(&n)
	return n, err
}

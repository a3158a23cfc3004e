package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/anomaly.report/internal/report"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("not found")

// Report is a saved detection run. Features holds the GeoJSON
// FeatureCollection exactly as it was returned to the caller.
type Report struct {
	ID        string          `json:"report_id"`
	Name      string          `json:"name"`
	Metric    traffic.Metric  `json:"dataType"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	CreatedAt time.Time       `json:"created_at"`
	Eps       float64         `json:"eps"`
	Outliers  int             `json:"outliers"`
	Clusters  int             `json:"clusters"`
	Params    json.RawMessage `json:"params,omitempty"`
	Features  json.RawMessage `json:"features,omitempty"`
}

// SaveReport stores r and one row per feature. A new id is assigned when
// r.ID is empty and CreatedAt defaults to now.
func (db *DB) SaveReport(ctx context.Context, r *Report, features []report.AnomalyFeature) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if len(r.Params) == 0 {
		r.Params = json.RawMessage("{}")
	}
	fc, err := json.Marshal(report.FeatureCollection(features))
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	r.Features = fc

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (report_id, name, metric, start_time, end_time, created_at,
			eps, outliers, clusters, params_json, features_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Metric.String(), r.Start.Unix(), r.End.Unix(), r.CreatedAt.Unix(),
		r.Eps, r.Outliers, r.Clusters, string(r.Params), string(r.Features))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, f := range features {
		geom, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode geometry for cluster %d: %w", f.ClusterID, err)
		}
		cells := make([]string, len(f.Cells))
		for i, c := range f.Cells {
			cells[i] = c.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_clusters (report_id, cluster_id, ts, noise, cells, max_score, area_m2, geometry_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, f.ClusterID, f.Timestamp.Unix(), f.Noise, strings.Join(cells, ","), f.MaxScore, f.AreaM2, string(geom))
		if err != nil {
			return fmt.Errorf("insert cluster %d: %w", f.ClusterID, err)
		}
	}
	return tx.Commit()
}

// Report loads one report including its feature collection.
func (db *DB) Report(ctx context.Context, id string) (*Report, error) {
	row := db.QueryRowContext(ctx, `
		SELECT report_id, name, metric, start_time, end_time, created_at,
			eps, outliers, clusters, params_json, features_json
		FROM reports WHERE report_id = ?
	`, id)
	var (
		r                 Report
		metric            string
		start, end, ctime int64
		params, features  string
	)
	err := row.Scan(&r.ID, &r.Name, &metric, &start, &end, &ctime,
		&r.Eps, &r.Outliers, &r.Clusters, &params, &features)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	if r.Metric, err = traffic.ParseMetric(metric); err != nil {
		return nil, err
	}
	r.Start = time.Unix(start, 0).UTC()
	r.End = time.Unix(end, 0).UTC()
	r.CreatedAt = time.Unix(ctime, 0).UTC()
	r.Params = json.RawMessage(params)
	r.Features = json.RawMessage(features)
	return &r, nil
}

// Reports lists saved reports newest first, without their features.
// A non-positive limit returns all of them.
func (db *DB) Reports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT report_id, name, metric, start_time, end_time, created_at, eps, outliers, clusters
		FROM reports
		ORDER BY created_at DESC, report_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var (
			r                 Report
			metric            string
			start, end, ctime int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &metric, &start, &end, &ctime, &r.Eps, &r.Outliers, &r.Clusters); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if r.Metric, err = traffic.ParseMetric(metric); err != nil {
			return nil, err
		}
		r.Start = time.Unix(start, 0).UTC()
		r.End = time.Unix(end, 0).UTC()
		r.CreatedAt = time.Unix(ctime, 0).UTC()
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ReportFeatures rebuilds the stored features of a report ordered by
// cluster id then time.
func (db *DB) ReportFeatures(ctx context.Context, id string) ([]report.AnomalyFeature, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT cluster_id, ts, noise, cells, max_score, area_m2, geometry_json
		FROM report_clusters
		WHERE report_id = ?
		ORDER BY cluster_id, ts
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query report clusters: %w", err)
	}
	defer rows.Close()

	var features []report.AnomalyFeature
	for rows.Next() {
		var (
			f     report.AnomalyFeature
			ts    int64
			cells string
			geom  string
		)
		if err := rows.Scan(&f.ClusterID, &ts, &f.Noise, &cells, &f.MaxScore, &f.AreaM2, &geom); err != nil {
			return nil, fmt.Errorf("scan report cluster: %w", err)
		}
		f.Timestamp = time.Unix(ts, 0).UTC()
		for _, s := range strings.Split(cells, ",") {
			c, err := traffic.ParseCellID(s)
			if err != nil {
				return nil, err
			}
			f.Cells = append(f.Cells, c)
		}
		g, err := geojson.UnmarshalGeometry([]byte(geom))
		if err != nil {
			return nil, fmt.Errorf("decode geometry for cluster %d: %w", f.ClusterID, err)
		}
		poly, ok := g.Geometry().(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("cluster %d: stored geometry is %s, want Polygon", f.ClusterID, g.Geometry().GeoJSONType())
		}
		f.Geometry = poly
		features = append(features, f)
	}
	return features, rows.Err()
}

// DeleteReport removes a report and its clusters.
func (db *DB) DeleteReport(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM report_clusters WHERE report_id = ?", id); err != nil {
		return fmt.Errorf("delete report clusters: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM reports WHERE report_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anomaly.report/internal/report"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func sampleFeatures() []report.AnomalyFeature {
	return []report.AnomalyFeature{
		{ClusterID: 0, Timestamp: t0, Geometry: square(0, 0), Cells: []traffic.CellID{0x10, 0x20}, MaxScore: 4.5, AreaM2: 1e6},
		{ClusterID: 0, Timestamp: t0.Add(time.Hour), Geometry: square(0, 1), Cells: []traffic.CellID{0x30}, MaxScore: 3.1, AreaM2: 5e5},
		{ClusterID: 1, Timestamp: t0, Geometry: square(5, 5), Cells: []traffic.CellID{0x40}, MaxScore: 2.6, Noise: true},
	}
}

func TestSaveAndLoadReport(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &Report{
		Name:     "morning incident",
		Metric:   traffic.Speed,
		Start:    t0,
		End:      t0.Add(23 * time.Hour),
		Eps:      0.42,
		Outliers: 12,
		Clusters: 1,
		Params:   json.RawMessage(`{"threshold":2}`),
	}
	require.NoError(t, db.SaveReport(ctx, r, sampleFeatures()))
	require.NotEmpty(t, r.ID)
	require.False(t, r.CreatedAt.IsZero())

	got, err := db.Report(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning incident", got.Name)
	assert.Equal(t, traffic.Speed, got.Metric)
	assert.True(t, got.Start.Equal(t0))
	assert.InDelta(t, 0.42, got.Eps, 1e-12)
	assert.Equal(t, 12, got.Outliers)
	assert.JSONEq(t, `{"threshold":2}`, string(got.Params))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(got.Features, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3)
}

func TestReportFeaturesRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &Report{Metric: traffic.Congestion, Start: t0, End: t0.Add(time.Hour)}
	want := sampleFeatures()
	require.NoError(t, db.SaveReport(ctx, r, want))

	got, err := db.ReportFeatures(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ClusterID, got[i].ClusterID)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, want[i].Cells, got[i].Cells)
		assert.Equal(t, want[i].Noise, got[i].Noise)
		assert.Equal(t, want[i].Geometry, got[i].Geometry)
	}
}

func TestReportsListing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	older := &Report{Name: "older", Metric: traffic.Speed, Start: t0, End: t0, CreatedAt: t0}
	newer := &Report{Name: "newer", Metric: traffic.Speed, Start: t0, End: t0, CreatedAt: t0.Add(time.Hour)}
	require.NoError(t, db.SaveReport(ctx, older, nil))
	require.NoError(t, db.SaveReport(ctx, newer, nil))

	all, err := db.Reports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].Name)
	assert.Empty(t, all[0].Features)

	limited, err := db.Reports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteReport(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &Report{Metric: traffic.Speed, Start: t0, End: t0}
	require.NoError(t, db.SaveReport(ctx, r, sampleFeatures()))
	require.NoError(t, db.DeleteReport(ctx, r.ID))

	_, err := db.Report(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	features, err := db.ReportFeatures(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, features)

	assert.ErrorIs(t, db.DeleteReport(ctx, r.ID), ErrNotFound)
}

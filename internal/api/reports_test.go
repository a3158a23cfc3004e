package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/testutil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func saveTestReport(t *testing.T, database *db.DB, name string) string {
	t.Helper()
	rep := &db.Report{
		Name:   name,
		Metric: traffic.Speed,
		Start:  seedStart,
		End:    seedStart.Add(24 * time.Hour),
		Eps:    1.5,
	}
	if err := database.SaveReport(context.Background(), rep, nil); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	return rep.ID
}

func TestReportsLifecycle(t *testing.T) {
	server, database := setupTestServer(t)
	mux := server.ServeMux()
	first := saveTestReport(t, database, "first")
	saveTestReport(t, database, "second")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var list []db.Report
	testutil.DecodeBody(t, rec, &list)
	if len(list) != 2 {
		t.Fatalf("listed %d reports, want 2", len(list))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports?limit=1", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("limit=1 listed %d reports", len(list))
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+first, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got db.Report
	testutil.DecodeBody(t, rec, &got)
	if got.ID != first || got.Name != "first" || got.Metric != traffic.Speed {
		t.Errorf("got report %+v", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/reports/"+first, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/api/reports/"+first, nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	}
}

func TestListReportsInvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	for _, l := range []string{"0", "-3", "many"} {
		rec := httptest.NewRecorder()
		server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports?limit="+l, nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}
}

func TestDownloadReport(t *testing.T) {
	server, database := setupTestServer(t)
	mux := server.ServeMux()
	id := saveTestReport(t, database, "A12 closure / Bow")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+id+"/geojson", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=A12_closure_Bow.geojson" {
		t.Errorf("Content-Disposition = %q", got)
	}
	var fc featureCollection
	testutil.DecodeBody(t, rec, &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 0 {
		t.Errorf("features = %+v", fc)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/missing/geojson", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

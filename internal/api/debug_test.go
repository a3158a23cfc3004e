package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/anomaly.report/internal/testutil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func kdistanceQuery() url.Values {
	q := url.Values{}
	q.Set("start", seedStart.Format(time.RFC3339))
	q.Set("end", seedStart.Add(seedWeeks*168*time.Hour-time.Hour).Format(time.RFC3339))
	q.Set("bbox", "-0.14,51.49,-0.06,51.53")
	q.Set("dataType", "SPEED_KMH")
	return q
}

func TestRequestFromQuery(t *testing.T) {
	q := kdistanceQuery()
	q.Set("minNeighbors", "3")
	req, err := requestFromQuery(httptest.NewRequest(http.MethodGet, "/debug/kdistance?"+q.Encode(), nil))
	testutil.AssertNoError(t, err)
	if *req.DataType != traffic.Speed || *req.MinNeighbors != 3 || *req.Eps != 0 {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Polygon) != 4 || req.Polygon[2] != [2]float64{-0.06, 51.53} {
		t.Errorf("polygon = %v", req.Polygon)
	}

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad start", "start", "yesterday"},
		{"bad end", "end", ""},
		{"bad metric", "dataType", "FLOW"},
		{"short bbox", "bbox", "1,2,3"},
		{"bad bbox", "bbox", "a,b,c,d"},
		{"bad minNeighbors", "minNeighbors", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := kdistanceQuery()
			q.Set(tt.key, tt.value)
			_, err := requestFromQuery(httptest.NewRequest(http.MethodGet, "/debug/kdistance?"+q.Encode(), nil))
			if !errors.Is(err, traffic.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestKDistanceChart(t *testing.T) {
	server, database := setupTestServer(t)

	t.Run("no outliers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.handleKDistance(rec, httptest.NewRequest(http.MethodGet, "/debug/kdistance?"+kdistanceQuery().Encode(), nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	})

	seedIncident(t, database)
	t.Run("incident", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.handleKDistance(rec, httptest.NewRequest(http.MethodGet, "/debug/kdistance?"+kdistanceQuery().Encode(), nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "echarts") {
			t.Error("expected an echarts page")
		}
	})

	t.Run("bad query", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.handleKDistance(rec, httptest.NewRequest(http.MethodGet, "/debug/kdistance?bbox=1", nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	})
}

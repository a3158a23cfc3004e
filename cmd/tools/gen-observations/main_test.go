package main

import (
	"context"
	"encoding/json"
	"flag"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/synth"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func TestParseIncident(t *testing.T) {
	got, err := parseIncident("-0.10,51.51,1500,2025-01-28T02:00:00Z,3,0.3")
	if err != nil {
		t.Fatalf("parseIncident error: %v", err)
	}
	want := synth.Incident{
		Center:      orb.Point{-0.10, 51.51},
		RadiusM:     1500,
		Start:       time.Date(2025, 1, 28, 2, 0, 0, 0, time.UTC),
		Hours:       3,
		SpeedFactor: 0.3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("incident mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "1,2,3", "1,2,3,yesterday,3,0.3", "1,2,x,2025-01-28T02:00:00Z,3,0.3"} {
		if _, err := parseIncident(bad); err == nil {
			t.Errorf("parseIncident(%q) should fail", bad)
		}
	}
}

func TestIncidentFlagRepeats(t *testing.T) {
	var incidents incidentFlags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&incidents, "incident", "")
	err := fs.Parse([]string{
		"-incident", "-0.10,51.51,1500,2025-01-28T02:00:00Z,3,0.3",
		"-incident", "-0.08,51.50,800,2025-02-04T17:00:00Z,2,0.5",
	})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(incidents) != 2 || incidents[1].RadiusM != 800 {
		t.Errorf("incidents = %+v", incidents)
	}
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-0.14, 51.49, -0.06, 51.53")
	if err != nil {
		t.Fatalf("parseBBox error: %v", err)
	}
	if b.Min != (orb.Point{-0.14, 51.49}) || b.Max != (orb.Point{-0.06, 51.53}) {
		t.Errorf("bound = %v", b)
	}
	if _, err := parseBBox("1,2,3"); err == nil {
		t.Error("expected error for three values")
	}
}

func TestPostBatches(t *testing.T) {
	obs := make([]traffic.Observation, 5)
	for i := range obs {
		obs[i] = traffic.Observation{CellID: traffic.CellID(0x10 + i), Timestamp: time.Unix(int64(i)*3600, 0).UTC()}
	}
	client := &httputil.MockHTTPClient{}
	client.AddResponse(200, `{"written":2}`).
		AddResponse(200, `{"written":2}`).
		AddResponse(200, `{"written":1}`)

	n, err := post(context.Background(), client, "http://localhost:8080/api/observations", obs, 2)
	if err != nil {
		t.Fatalf("post error: %v", err)
	}
	if n != 5 || client.RequestCount() != 3 {
		t.Errorf("written %d in %d requests, want 5 in 3", n, client.RequestCount())
	}

	var first []traffic.Observation
	if err := json.Unmarshal(client.Bodies[0], &first); err != nil {
		t.Fatalf("decode first body: %v", err)
	}
	if diff := cmp.Diff(obs[:2], first); diff != "" {
		t.Errorf("first batch mismatch (-want +got):\n%s", diff)
	}
}

func TestPostStopsOnError(t *testing.T) {
	obs := make([]traffic.Observation, 4)
	client := &httputil.MockHTTPClient{}
	client.AddResponse(200, `{"written":2}`).AddResponse(400, `{"error":"bad cell"}`)

	n, err := post(context.Background(), client, "http://localhost:8080/api/observations", obs, 2)
	if err == nil {
		t.Fatal("expected error from second batch")
	}
	if n != 2 {
		t.Errorf("written = %d, want 2 before the failure", n)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultsFileMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	if cfg.GetMinCoverage() != empty.GetMinCoverage() {
		t.Errorf("min_coverage: file %f, getter default %f", cfg.GetMinCoverage(), empty.GetMinCoverage())
	}
	if cfg.GetMinNeighbors() != empty.GetMinNeighbors() {
		t.Errorf("min_neighbors: file %d, getter default %d", cfg.GetMinNeighbors(), empty.GetMinNeighbors())
	}
	if cfg.GetMetersPerHour() != empty.GetMetersPerHour() {
		t.Errorf("meters_per_hour: file %f, getter default %f", cfg.GetMetersPerHour(), empty.GetMetersPerHour())
	}
	if cfg.GetCellLevel() != empty.GetCellLevel() {
		t.Errorf("cell_level: file %d, getter default %d", cfg.GetCellLevel(), empty.GetCellLevel())
	}
	if cfg.GetFetchTimeout() != empty.GetFetchTimeout() {
		t.Errorf("fetch_timeout: file %v, getter default %v", cfg.GetFetchTimeout(), empty.GetFetchTimeout())
	}
	for _, m := range traffic.Metrics {
		if cfg.GetThreshold(m) != m.DefaultThreshold() {
			t.Errorf("threshold %v: file %f, metric default %f", m, cfg.GetThreshold(m), m.DefaultThreshold())
		}
	}
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "test_config.json", `{
  "min_coverage": 0.9,
  "min_neighbors": 4,
  "eps": 0.3,
  "include_noise": true,
  "thresholds": {"speed_khm": 1.8},
  "fetch_timeout": "5s",
  "fetch_concurrency": 2
}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMinCoverage() != 0.9 {
		t.Errorf("Expected MinCoverage 0.9, got %f", cfg.GetMinCoverage())
	}
	if cfg.GetThreshold(traffic.Speed) != 1.8 {
		t.Errorf("Expected speed threshold 1.8, got %f", cfg.GetThreshold(traffic.Speed))
	}
	if cfg.GetThreshold(traffic.Congestion) != traffic.Congestion.DefaultThreshold() {
		t.Errorf("Expected congestion threshold to fall back to default, got %f", cfg.GetThreshold(traffic.Congestion))
	}
	if cfg.GetFetchTimeout() != 5*time.Second {
		t.Errorf("Expected FetchTimeout 5s, got %v", cfg.GetFetchTimeout())
	}
	if cfg.GetMaxCoveringCells() != 16 {
		t.Errorf("Expected omitted MaxCoveringCells to default to 16, got %d", cfg.GetMaxCoveringCells())
	}

	p := cfg.Params(traffic.Speed)
	if p.MinNeighbors != 4 || p.Eps != 0.3 || !p.IncludeNoise || p.Threshold != 1.8 {
		t.Errorf("unexpected params %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("params from config should validate: %v", err)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "config.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{`, "failed to parse"},
		{"coverage out of range", "c.json", `{"min_coverage": 1.5}`, "min_coverage"},
		{"zero neighbours", "n.json", `{"min_neighbors": 0}`, "min_neighbors"},
		{"negative eps", "e.json", `{"eps": -1}`, "eps"},
		{"unknown metric", "m.json", `{"thresholds": {"FLOW": 2}}`, "unknown metric"},
		{"bad timeout", "d.json", `{"fetch_timeout": "soon"}`, "fetch_timeout"},
		{"cell level", "l.json", `{"cell_level": 31}`, "cell_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	body := `{"eps": 0.1, "pad": "` + strings.Repeat("x", 1024*1024) + `"}`
	path := writeConfig(t, "big.json", body)
	if _, err := LoadTuningConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestResolved(t *testing.T) {
	r := EmptyTuningConfig().Resolved()
	if r.MinCoverage == nil || *r.MinCoverage != 0.85 {
		t.Errorf("Expected resolved MinCoverage 0.85, got %v", r.MinCoverage)
	}
	if r.FetchTimeout == nil || *r.FetchTimeout != "30s" {
		t.Errorf("Expected resolved FetchTimeout 30s, got %v", r.FetchTimeout)
	}
	if len(r.Thresholds) != len(traffic.Metrics) {
		t.Errorf("Expected %d thresholds, got %d", len(traffic.Metrics), len(r.Thresholds))
	}
	if err := r.Validate(); err != nil {
		t.Errorf("resolved config should validate: %v", err)
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/anomaly.report/internal/anomaly"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the detection and fetch tunables. The JSON schema is
// also served by GET /api/config so the running values can be inspected.
type TuningConfig struct {
	// Detection params
	MinCoverage   *float64           `json:"min_coverage,omitempty"`
	MinNeighbors  *int               `json:"min_neighbors,omitempty"`
	Eps           *float64           `json:"eps,omitempty"` // 0 selects eps per request
	MetersPerHour *float64           `json:"meters_per_hour,omitempty"`
	IncludeNoise  *bool              `json:"include_noise,omitempty"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"` // keyed by metric name

	// Store and fetch params
	CellLevel        *int    `json:"cell_level,omitempty"`
	FetchConcurrency *int    `json:"fetch_concurrency,omitempty"`
	FetchTimeout     *string `json:"fetch_timeout,omitempty"` // duration string like "30s"
	MaxCoveringCells *int    `json:"max_covering_cells,omitempty"`
	MaxWindowDays    *int    `json:"max_window_days,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinCoverage != nil {
		if *c.MinCoverage < 0 || *c.MinCoverage > 1 {
			return fmt.Errorf("min_coverage must be between 0 and 1, got %f", *c.MinCoverage)
		}
	}

	if c.MinNeighbors != nil && *c.MinNeighbors < 1 {
		return fmt.Errorf("min_neighbors must be at least 1, got %d", *c.MinNeighbors)
	}

	if c.Eps != nil && *c.Eps < 0 {
		return fmt.Errorf("eps must be non-negative, got %f", *c.Eps)
	}

	if c.MetersPerHour != nil && *c.MetersPerHour <= 0 {
		return fmt.Errorf("meters_per_hour must be positive, got %f", *c.MetersPerHour)
	}

	for name, v := range c.Thresholds {
		if _, err := traffic.ParseMetric(name); err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		if v <= 0 {
			return fmt.Errorf("threshold for %s must be positive, got %f", name, v)
		}
	}

	if c.CellLevel != nil && (*c.CellLevel < 0 || *c.CellLevel > 30) {
		return fmt.Errorf("cell_level must be between 0 and 30, got %d", *c.CellLevel)
	}

	if c.FetchConcurrency != nil && *c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1, got %d", *c.FetchConcurrency)
	}

	if c.FetchTimeout != nil && *c.FetchTimeout != "" {
		if _, err := time.ParseDuration(*c.FetchTimeout); err != nil {
			return fmt.Errorf("invalid fetch_timeout '%s': %w", *c.FetchTimeout, err)
		}
	}

	if c.MaxCoveringCells != nil && *c.MaxCoveringCells < 1 {
		return fmt.Errorf("max_covering_cells must be at least 1, got %d", *c.MaxCoveringCells)
	}

	if c.MaxWindowDays != nil && *c.MaxWindowDays < 1 {
		return fmt.Errorf("max_window_days must be at least 1, got %d", *c.MaxWindowDays)
	}

	return nil
}

// GetMinCoverage returns the min_coverage value or the default.
func (c *TuningConfig) GetMinCoverage() float64 {
	if c.MinCoverage == nil {
		return 0.85 // default
	}
	return *c.MinCoverage
}

// GetMinNeighbors returns the min_neighbors value or the default.
func (c *TuningConfig) GetMinNeighbors() int {
	if c.MinNeighbors == nil {
		return 6 // default
	}
	return *c.MinNeighbors
}

// GetEps returns the eps value or 0 (automatic).
func (c *TuningConfig) GetEps() float64 {
	if c.Eps == nil {
		return 0
	}
	return *c.Eps
}

func (c *TuningConfig) GetMetersPerHour() float64 {
	if c.MetersPerHour == nil {
		return 40.0
	}
	return *c.MetersPerHour
}

func (c *TuningConfig) GetIncludeNoise() bool {
	if c.IncludeNoise == nil {
		return false
	}
	return *c.IncludeNoise
}

// GetThreshold returns the configured threshold for m, or the metric's
// built-in default. Keys are matched through ParseMetric so legacy
// spellings work.
func (c *TuningConfig) GetThreshold(m traffic.Metric) float64 {
	for name, v := range c.Thresholds {
		if parsed, err := traffic.ParseMetric(name); err == nil && parsed == m {
			return v
		}
	}
	return m.DefaultThreshold()
}

// GetCellLevel returns the cell_level value or the default.
func (c *TuningConfig) GetCellLevel() int {
	if c.CellLevel == nil {
		return 13 // default
	}
	return *c.CellLevel
}

// GetFetchConcurrency returns the fetch_concurrency value or the default.
func (c *TuningConfig) GetFetchConcurrency() int {
	if c.FetchConcurrency == nil {
		return 8 // default
	}
	return *c.FetchConcurrency
}

// GetFetchTimeout parses and returns the FetchTimeout as a time.Duration.
func (c *TuningConfig) GetFetchTimeout() time.Duration {
	if c.FetchTimeout == nil || *c.FetchTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FetchTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

func (c *TuningConfig) GetMaxCoveringCells() int {
	if c.MaxCoveringCells == nil {
		return 16
	}
	return *c.MaxCoveringCells
}

func (c *TuningConfig) GetMaxWindowDays() int {
	if c.MaxWindowDays == nil {
		return 62
	}
	return *c.MaxWindowDays
}

// Params builds the detection parameters for m from this config.
func (c *TuningConfig) Params(m traffic.Metric) anomaly.Params {
	return anomaly.Params{
		Metric:        m,
		Threshold:     c.GetThreshold(m),
		MinCoverage:   c.GetMinCoverage(),
		MinNeighbors:  c.GetMinNeighbors(),
		Eps:           c.GetEps(),
		MetersPerHour: c.GetMetersPerHour(),
		IncludeNoise:  c.GetIncludeNoise(),
	}
}

// Resolved returns a copy with every field populated from its getter, for
// display.
func (c *TuningConfig) Resolved() *TuningConfig {
	thresholds := make(map[string]float64, len(traffic.Metrics))
	for _, m := range traffic.Metrics {
		thresholds[m.String()] = c.GetThreshold(m)
	}
	return &TuningConfig{
		MinCoverage:      ptrFloat64(c.GetMinCoverage()),
		MinNeighbors:     ptrInt(c.GetMinNeighbors()),
		Eps:              ptrFloat64(c.GetEps()),
		MetersPerHour:    ptrFloat64(c.GetMetersPerHour()),
		IncludeNoise:     ptrBool(c.GetIncludeNoise()),
		Thresholds:       thresholds,
		CellLevel:        ptrInt(c.GetCellLevel()),
		FetchConcurrency: ptrInt(c.GetFetchConcurrency()),
		FetchTimeout:     ptrString(c.GetFetchTimeout().String()),
		MaxCoveringCells: ptrInt(c.GetMaxCoveringCells()),
		MaxWindowDays:    ptrInt(c.GetMaxWindowDays()),
	}
}

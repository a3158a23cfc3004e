package detection

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/anomaly.report/internal/traffic"
)

func TestComputeProfileIgnoresMissing(t *testing.T) {
	profile, err := ComputeProfile([]float64{1, math.NaN(), 3, 4}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Mean[0] != 2 || profile.Mean[1] != 4 {
		t.Errorf("expected means [2 4], got %v", profile.Mean)
	}
	if profile.Std[0] != 1 {
		t.Errorf("expected std[0]=1, got %f", profile.Std[0])
	}
	if profile.Std[1] != 0 {
		t.Errorf("expected std[1]=0 for a single sample, got %f", profile.Std[1])
	}
}

func TestComputeProfileEmptyPhase(t *testing.T) {
	profile, err := ComputeProfile([]float64{5, math.NaN(), 7}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(profile.Mean[1]) || !math.IsNaN(profile.Std[1]) {
		t.Errorf("expected NaN stats for phase without samples, got mean=%f std=%f", profile.Mean[1], profile.Std[1])
	}
}

func TestComputeProfileInvalid(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
	}{
		{"empty values", nil, 168},
		{"zero period", []float64{1}, 0},
		{"negative period", []float64{1}, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeProfile(tt.values, tt.period)
			if !errors.Is(err, traffic.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestProfileScore(t *testing.T) {
	p := Profile{Period: 2, Mean: []float64{10, 10}, Std: []float64{2, 0}}
	if got := p.Score(0, 16); got != 3 {
		t.Errorf("expected score 3, got %f", got)
	}
	if got := p.Score(2, 4); got != 3 {
		t.Errorf("expected phase wrap score 3, got %f", got)
	}
	if got := p.Score(1, 100); !math.IsNaN(got) {
		t.Errorf("expected NaN for zero-variance phase, got %f", got)
	}
	if got := p.Score(0, math.NaN()); !math.IsNaN(got) {
		t.Errorf("expected NaN for missing value, got %f", got)
	}
}

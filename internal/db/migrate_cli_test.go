package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	if err := RunMigrateCommand([]string{"up"}, path, &out); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("unexpected status output:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"down"}, path, &out); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") {
		t.Errorf("unexpected status output:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"version", "2"}, path, &out); err != nil {
		t.Fatalf("migrate version failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("unexpected status output:\n%s", out.String())
	}
}

func TestRunMigrateCommandErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	tests := [][]string{
		nil,
		{"sideways"},
		{"version"},
		{"version", "x"},
		{"force", "-"},
	}
	for _, args := range tests {
		if err := RunMigrateCommand(args, path, &out); err == nil {
			t.Errorf("RunMigrateCommand(%v) expected error", args)
		}
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"help"}, path, &out); err != nil {
		t.Errorf("help returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: anomaly-report migrate") {
		t.Errorf("help output missing usage line")
	}
}

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Ingest.Directory = filepath.Join(dir, "activities")
	cfg.SQLite.Path = filepath.Join(dir, "cadence.db")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRunImportAndContext(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	if err := os.MkdirAll(cfg.Ingest.Directory, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Ingest.Directory, "run.fit"), testutil.Run(start, 40*time.Minute), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := []Option{WithConfig(cfg), WithLogOutput(io.Discard)}

	var out bytes.Buffer
	if err := RunImport(context.Background(), "", &out, opts...); err != nil {
		t.Fatalf("RunImport: %v", err)
	}
	var rep struct {
		Imported int `json:"imported"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Imported != 1 {
		t.Errorf("imported = %d, want 1", rep.Imported)
	}

	out.Reset()
	if err := RunContext(context.Background(), start.Add(time.Hour), &out, opts...); err != nil {
		t.Fatalf("RunContext: %v", err)
	}
	var hc struct {
		SevenDay struct {
			Sessions        int     `json:"sessions"`
			DurationSeconds float64 `json:"duration_s"`
		} `json:"seven_day"`
	}
	if err := json.Unmarshal(out.Bytes(), &hc); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if hc.SevenDay.Sessions != 1 || hc.SevenDay.DurationSeconds != 2400 {
		t.Errorf("seven day = %+v", hc.SevenDay)
	}
}

func TestRunThresholdPaceReportsInsufficientData(t *testing.T) {
	cfg := testConfig(t)
	err := RunThresholdPace(context.Background(), time.Time{}, io.Discard, WithConfig(cfg), WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestRunArchive(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	err := RunArchive(context.Background(), true, &out, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("RunArchive: %v", err)
	}
	var res map[string][]string
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := res["session"]; !ok {
		t.Error("session key missing")
	}
	if len(res["stale"]) != 0 {
		t.Errorf("stale = %v", res["stale"])
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := RunImport(context.Background(), "", io.Discard); err == nil {
		t.Error("expected error without config")
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/solver"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "point_to_point" {
		t.Errorf("expected mode point_to_point, got %s", cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	h, err := cfg.HorizonSpec()
	if err != nil {
		t.Fatal(err)
	}
	if h.Steps != 40 {
		t.Errorf("expected 40 steps, got %d", h.Steps)
	}
	if diff := cmp.Diff(solver.DefaultConfig(), cfg.SolverOptions()); diff != "" {
		t.Errorf("solver options differ from solver defaults (-want +got):\n%s", diff)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "parallel_parking"
	cfg.Dt = 0
	cfg.Reference = nil
	cfg.Solver.Backend = "ipopt"

	err := cfg.Validate()
	if got := len(multierr.Errors(err)); got != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", got, err)
	}
	if !errors.Is(err, dynamo.ErrInvalidHorizon) {
		t.Error("expected the horizon error to be reported")
	}
	if !errors.Is(err, dynamo.ErrMalformedReference) {
		t.Error("expected the reference error to be reported")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	cfg := GetPreset("coverage", "lawnmower")
	cfg.Solver.MaxDuration = 250 * time.Millisecond

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("mode: coverage\npath_window: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Mode != "coverage" {
		t.Errorf("expected mode coverage, got %s", loaded.Mode)
	}
	if loaded.PathWindow != 3 {
		t.Errorf("expected path window 3, got %d", loaded.PathWindow)
	}
	if loaded.Solver.Backend != "alm" {
		t.Errorf("expected default backend alm, got %q", loaded.Solver.Backend)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("backward_recovery", "jackknife")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.InitialState[3] != 0.5 {
		t.Errorf("expected articulation 0.5, got %f", cfg.InitialState[3])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("preset invalid: %v", err)
	}

	cfg.InitialState[3] = 0
	if again := GetPreset("backward_recovery", "jackknife"); again.InitialState[3] != 0.5 {
		t.Error("editing a preset copy changed the preset")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("coverage", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "line"); cfg != nil {
		t.Error("expected nil for nonexistent mode")
	}
}

func TestListPresets(t *testing.T) {
	if diff := cmp.Diff([]string{"lawnmower", "line"}, ListPresets("coverage")); diff != "" {
		t.Errorf("unexpected presets (-want +got):\n%s", diff)
	}
	if presets := ListPresets("nonexistent"); presets != nil {
		t.Error("expected nil for nonexistent mode")
	}
}

func TestReferenceStates(t *testing.T) {
	cfg := DefaultConfig()
	ref := cfg.ReferenceStates()
	ref[0][0] = 99
	if cfg.Reference[0][0] == 99 {
		t.Error("reference states alias the config")
	}
}

func TestDefaultPresetsExist(t *testing.T) {
	for mode, name := range DefaultPresets {
		cfg := GetPreset(mode, name)
		if cfg == nil {
			t.Errorf("mode %s: default preset %s missing", mode, name)
			continue
		}
		if cfg.Mode != mode {
			t.Errorf("preset %s has mode %s, want %s", name, cfg.Mode, mode)
		}
	}
}

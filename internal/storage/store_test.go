package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/optimizer"
	"github.com/san-kum/hitchplan/internal/sim"
	"github.com/san-kum/hitchplan/internal/solver"
)

func trackResult() *sim.Result {
	return &sim.Result{
		States: []dynamo.State{
			{0, 0, 0},
			{0.1, 0, 0},
			{0.2, 0, 0.05},
		},
		Controls: []dynamo.Control{
			{1, 0},
			{1, 0.5},
		},
		Times:       []float64{0, 0.1, 0.2},
		Metrics:     map[string]float64{"goal_distance": 0.25},
		StepsTaken:  2,
		ReachedGoal: true,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	runID, err := st.Save(FromResult(cfg, trackResult()))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Kind != KindTrack || meta.Mode != "point_to_point" {
		t.Errorf("unexpected kind/mode %s/%s", meta.Kind, meta.Mode)
	}
	if meta.Status != "reached_goal" {
		t.Errorf("expected status reached_goal, got %s", meta.Status)
	}
	if meta.Metrics["goal_distance"] != 0.25 {
		t.Errorf("expected goal_distance 0.25, got %f", meta.Metrics["goal_distance"])
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if diff := cmp.Diff([][]float64{{0, 0, 0}, {0.1, 0, 0}, {0.2, 0, 0.05}}, states); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	if len(times) != 3 {
		t.Errorf("expected 3 times, got %d", len(times))
	}

	controls, ctimes, err := st.LoadControls(runID)
	if err != nil {
		t.Fatalf("load controls failed: %v", err)
	}
	if diff := cmp.Diff([][]float64{{1, 0}, {1, 0.5}}, controls); diff != "" {
		t.Errorf("controls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.1}, ctimes); diff != "" {
		t.Errorf("control times (-want +got):\n%s", diff)
	}
}

func TestFromTrajectory(t *testing.T) {
	seq, err := dynamo.SequenceFrom(2, []float64{1, 0, 0.5, 0.2})
	if err != nil {
		t.Fatal(err)
	}
	traj := &optimizer.Trajectory{
		Controls:        seq,
		States:          []dynamo.State{{0, 0, 0}, {0.1, 0, 0}, {0.15, 0, 0.02}},
		Cost:            3.5,
		Status:          solver.Converged,
		OuterIterations: 4,
		SolveTime:       1500 * time.Microsecond,
	}

	run := FromTrajectory(config.DefaultConfig(), traj)
	if run.Kind != KindPlan || run.Status != "Converged" {
		t.Errorf("unexpected kind/status %s/%s", run.Kind, run.Status)
	}
	if diff := cmp.Diff([][]float64{{1, 0}, {0.5, 0.2}}, run.Controls); diff != "" {
		t.Errorf("controls per step (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.1, 0.2}, run.Times); diff != "" {
		t.Errorf("times (-want +got):\n%s", diff)
	}
	if run.Metrics["solve_time_ms"] != 1.5 {
		t.Errorf("expected solve time 1.5ms, got %v", run.Metrics["solve_time_ms"])
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	cfg := config.DefaultConfig()
	for i := 0; i < 2; i++ {
		if _, err := st.Save(FromResult(cfg, trackResult())); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	// stray files are ignored
	if err := os.Mkdir(filepath.Join(tmpDir, "not_a_run"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID == runs[1].ID {
		t.Error("run ids collide")
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(FromResult(config.DefaultConfig(), trackResult()))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "states.csv", "controls.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	runID, err := st.Save(FromResult(config.DefaultConfig(), trackResult()))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.Export(runID, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if data.ID != runID || data.Steps != 2 {
		t.Errorf("unexpected header id=%s steps=%d", data.ID, data.Steps)
	}
	if len(data.States) != 3 || len(data.Controls) != 2 {
		t.Errorf("expected 3 states and 2 controls, got %d and %d", len(data.States), len(data.Controls))
	}
}

func TestExportMissingRun(t *testing.T) {
	st := New(t.TempDir())
	var buf bytes.Buffer
	if err := st.Export("nope", &buf); err == nil {
		t.Error("expected error for a missing run")
	}
}

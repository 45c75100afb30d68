package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/hitchplan/internal/control"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/metrics"
	"github.com/san-kum/hitchplan/internal/models"
)

type constController struct {
	u dynamo.Control
}

func (c *constController) Compute(ctx context.Context, x dynamo.State, t float64) (dynamo.Control, error) {
	return c.u.Clone(), nil
}

type failingController struct {
	after int
	calls int
}

var errController = errors.New("controller broke")

func (c *failingController) Compute(ctx context.Context, x dynamo.State, t float64) (dynamo.Control, error) {
	c.calls++
	if c.calls > c.after {
		return nil, errController
	}
	return dynamo.Control{0, 0}, nil
}

type nanModel struct{ *models.Unicycle }

func (m nanModel) Step(x dynamo.State, u dynamo.Control, dt float64) dynamo.State {
	return dynamo.State{math.NaN(), 0, 0}
}

func TestSimulatorRun(t *testing.T) {
	sim := New(models.NewUnicycle(), &constController{u: dynamo.Control{1, 0}}, nil)

	cfg := Config{
		Dt:       0.1,
		Duration: 1.0,
	}

	result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Controls) != 10 {
		t.Errorf("expected 10 controls, got %d", len(result.Controls))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}

	final := result.Final()
	if math.Abs(final[0]-1.0) > 1e-9 || math.Abs(final[1]) > 1e-12 {
		t.Errorf("expected final position (1, 0), got (%.4f, %.4f)", final[0], final[1])
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(models.NewUnicycle(), control.NewStop(2), nil)

	tests := []struct {
		name string
		x0   dynamo.State
		cfg  Config
		want error
	}{
		{"zero dt", dynamo.State{0, 0, 0}, Config{Dt: 0, Duration: 1.0}, dynamo.ErrConfiguration},
		{"negative dt", dynamo.State{0, 0, 0}, Config{Dt: -0.1, Duration: 1.0}, dynamo.ErrConfiguration},
		{"zero duration", dynamo.State{0, 0, 0}, Config{Dt: 0.1, Duration: 0}, dynamo.ErrConfiguration},
		{"negative duration", dynamo.State{0, 0, 0}, Config{Dt: 0.1, Duration: -1.0}, dynamo.ErrConfiguration},
		{"short state", dynamo.State{0, 0}, Config{Dt: 0.1, Duration: 1.0}, dynamo.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.x0, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(models.NewUnicycle(), &constController{u: dynamo.Control{1, 0}}, nil)

	effort := metrics.NewControlEffort()
	goal := metrics.NewGoalDistance(dynamo.State{2, 0, 0})
	sim.AddMetric(effort)
	sim.AddMetric(goal)

	result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0}, Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if v, ok := result.Metrics["control_effort"]; !ok || math.Abs(v-1.0) > 1e-12 {
		t.Errorf("expected control_effort 1, got %v (present %v)", v, ok)
	}
	// the final observation sees the state after the last step
	if v := result.Metrics["goal_distance"]; math.Abs(v-1.0) > 1e-9 {
		t.Errorf("expected goal_distance 1, got %v", v)
	}
}

type countingObserver struct{ steps int }

func (o *countingObserver) OnStep(x dynamo.State, u dynamo.Control, t float64) { o.steps++ }

func TestSimulatorStopsAtGoal(t *testing.T) {
	sim := New(models.NewUnicycle(), &constController{u: dynamo.Control{1, 0}}, nil)
	obs := &countingObserver{}
	sim.AddObserver(obs)

	cfg := Config{
		Dt:            0.1,
		Duration:      5.0,
		Goal:          dynamo.State{0.5, 0, 0},
		GoalTolerance: 0.01,
	}
	result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.ReachedGoal {
		t.Fatal("expected the run to reach the goal")
	}
	if result.StepsTaken != 5 {
		t.Errorf("expected 5 steps, got %d", result.StepsTaken)
	}
	if obs.steps != result.StepsTaken {
		t.Errorf("observer saw %d steps, want %d", obs.steps, result.StepsTaken)
	}
}

func TestSimulatorControllerError(t *testing.T) {
	sim := New(models.NewUnicycle(), &failingController{after: 3}, nil)

	result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0}, Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, errController) {
		t.Fatalf("expected controller error, got %v", err)
	}
	if result.StepsTaken != 3 {
		t.Errorf("expected 3 steps before the failure, got %d", result.StepsTaken)
	}
}

func TestSimulatorInvalidState(t *testing.T) {
	sim := New(nanModel{models.NewUnicycle()}, control.NewStop(2), nil)

	result, err := sim.Run(context.Background(), dynamo.State{0, 0, 0},
		Config{Dt: 0.1, Duration: 1.0, ValidateState: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one step error, got %d", len(result.Errors))
	}
	var stepErr StepError
	if !errors.As(result.Errors[0], &stepErr) || stepErr.Step != 0 {
		t.Errorf("expected StepError at step 0, got %v", result.Errors[0])
	}
}

func TestSimulatorCanceled(t *testing.T) {
	sim := New(models.NewUnicycle(), control.NewStop(2), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, dynamo.State{0, 0, 0}, Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunBatch(t *testing.T) {
	speeds := []float64{0.5, 1.0, 1.5, 0.25}
	jobs := make([]Job, len(speeds))
	for i, v := range speeds {
		jobs[i] = Job{
			Name:    "speed",
			Sim:     New(models.NewUnicycle(), &constController{u: dynamo.Control{v, 0}}, nil),
			Initial: dynamo.State{0, 0, 0},
			Config:  Config{Dt: 0.1, Duration: 1.0},
		}
	}

	results, err := RunBatch(context.Background(), jobs, 2)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	for i, v := range speeds {
		if got := results[i].Final()[0]; math.Abs(got-v) > 1e-9 {
			t.Errorf("job %d: expected final x %.2f, got %.4f", i, v, got)
		}
	}
}

func TestRunBatchPartialFailure(t *testing.T) {
	jobs := []Job{
		{Name: "ok", Sim: New(models.NewUnicycle(), control.NewStop(2), nil), Initial: dynamo.State{0, 0, 0}, Config: Config{Dt: 0.1, Duration: 1.0}},
		{Name: "bad", Sim: New(models.NewUnicycle(), control.NewStop(2), nil), Initial: dynamo.State{0, 0, 0}, Config: Config{Dt: 0, Duration: 1.0}},
	}

	results, err := RunBatch(context.Background(), jobs, 0)
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if results[0] == nil || results[1] != nil {
		t.Errorf("expected only the first job to produce a result")
	}
}

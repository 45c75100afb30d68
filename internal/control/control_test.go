package control

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/optimizer"
)

// scriptedPlanner returns plans whose controls encode the call number, or
// the scripted error for that call.
type scriptedPlanner struct {
	calls int
	errs  map[int]error
	steps int
}

func (p *scriptedPlanner) GenerateTrajectory(ctx context.Context, initial dynamo.State, reference []dynamo.State, warm *dynamo.Sequence) (*optimizer.Trajectory, error) {
	p.calls++
	if err := p.errs[p.calls]; err != nil {
		return nil, err
	}
	seq := dynamo.NewSequence(2, p.steps)
	for t := 0; t < p.steps; t++ {
		seq.Data[2*t] = float64(p.calls)
		seq.Data[2*t+1] = float64(t)
	}
	return &optimizer.Trajectory{Controls: seq}, nil
}

var goal = []dynamo.State{{1, 0, 0}}

func run(t *testing.T, c dynamo.Controller, steps int) []dynamo.Control {
	t.Helper()
	out := make([]dynamo.Control, 0, steps)
	for i := 0; i < steps; i++ {
		u, err := c.Compute(context.Background(), dynamo.State{0, 0, 0}, float64(i)*0.1)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		out = append(out, u)
	}
	return out
}

func TestMPCReplanRate(t *testing.T) {
	p := &scriptedPlanner{steps: 10}
	c := NewMPC(p, goal, 2, WithReplanEvery(3))

	got := run(t, c, 7)
	want := []dynamo.Control{{1, 0}, {1, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}, {3, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("controls (-want +got):\n%s", diff)
	}
	if p.calls != 3 || c.Stats().Replans != 3 {
		t.Errorf("calls = %d, replans = %d", p.calls, c.Stats().Replans)
	}
}

func TestMPCHoldsPreviousPlan(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	solveErr := &dynamo.SolveFailure{Status: "NotConvergedIterations"}
	p := &scriptedPlanner{steps: 3, errs: map[int]error{2: solveErr, 3: solveErr, 4: solveErr}}
	c := NewMPC(p, goal, 2, WithMPCLogger(logger))

	got := run(t, c, 4)
	want := []dynamo.Control{{1, 0}, {1, 1}, {1, 2}, {0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("controls (-want +got):\n%s", diff)
	}

	stats := c.Stats()
	if stats.Failures != 3 || stats.Holds != 2 || stats.SafeStops != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n := logs.FilterMessage("re-plan failed, holding previous plan").Len(); n != 2 {
		t.Errorf("hold warnings = %d, want 2", n)
	}
}

func TestMPCSafeStopWithoutPlan(t *testing.T) {
	transport := &dynamo.TransportFailure{Op: "dial", Err: errors.New("refused")}
	p := &scriptedPlanner{steps: 3, errs: map[int]error{1: transport}}
	c := NewMPC(p, goal, 2)

	got := run(t, c, 2)
	want := []dynamo.Control{{0, 0}, {2, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("controls (-want +got):\n%s", diff)
	}
}

func TestMPCConfigurationErrorIsFatal(t *testing.T) {
	cfgErr := dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference", "empty")
	p := &scriptedPlanner{steps: 3, errs: map[int]error{1: cfgErr}}
	c := NewMPC(p, nil, 2)

	_, err := c.Compute(context.Background(), dynamo.State{0, 0, 0}, 0)
	if !errors.Is(err, dynamo.ErrMalformedReference) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestOpenLoop(t *testing.T) {
	seq, _ := dynamo.SequenceFrom(2, []float64{1, 2, 3, 4})
	c := NewOpenLoop(seq)

	got := run(t, c, 3)
	want := []dynamo.Control{{1, 2}, {3, 4}, {0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("controls (-want +got):\n%s", diff)
	}

	c.Rewind()
	if u := run(t, c, 1)[0]; u[0] != 1 {
		t.Errorf("after rewind got %v", u)
	}
}

func TestStop(t *testing.T) {
	u := run(t, NewStop(2), 1)[0]
	if diff := cmp.Diff(dynamo.Control{0, 0}, u); diff != "" {
		t.Errorf("stop control (-want +got):\n%s", diff)
	}
}

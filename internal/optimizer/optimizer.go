// Package optimizer is the caller-facing planner: it validates a planning
// request, assembles the problem for the configured mode and hands it to a
// solver, once per call and without retry.
package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/planner"
	"github.com/san-kum/hitchplan/internal/solver"
)

type Options struct {
	Mode    planner.Mode
	Model   dynamo.Model
	Horizon ocp.Horizon
	Solver  solver.Solver
	Logger  logging.Logger
}

// Trajectory is an accepted plan.
type Trajectory struct {
	Controls        dynamo.Sequence
	States          []dynamo.State
	Cost            float64
	Status          solver.Status
	OuterIterations int
	InnerIterations int
	SolveTime       time.Duration
	Warnings        []*dynamo.DegenerateGeometryWarning
}

// Final returns the last predicted state.
func (t *Trajectory) Final() dynamo.State {
	return t.States[len(t.States)-1]
}

// TrajectoryOptimizer plans for one mode, model and horizon. Problems are
// built once per reference length and reused.
type TrajectoryOptimizer struct {
	mode    planner.Mode
	model   dynamo.Model
	horizon ocp.Horizon
	solver  solver.Solver
	logger  logging.Logger

	mu       sync.Mutex
	problems map[int]*ocp.Problem
	last     *dynamo.Sequence
}

func New(opts Options) (*TrajectoryOptimizer, error) {
	switch {
	case opts.Mode == nil:
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "mode", "no planning mode")
	case opts.Model == nil:
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "model", "no model")
	case opts.Solver == nil:
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "solver", "no solver")
	}
	if err := opts.Horizon.Validate(); err != nil {
		return nil, err
	}
	return &TrajectoryOptimizer{
		mode:     opts.Mode,
		model:    opts.Model,
		horizon:  opts.Horizon,
		solver:   opts.Solver,
		logger:   logging.OrNop(opts.Logger),
		problems: make(map[int]*ocp.Problem),
	}, nil
}

// Goal wraps a single target state as a reference.
func Goal(x dynamo.State) []dynamo.State {
	return []dynamo.State{x}
}

func (o *TrajectoryOptimizer) Mode() planner.Mode   { return o.mode }
func (o *TrajectoryOptimizer) Model() dynamo.Model  { return o.model }
func (o *TrajectoryOptimizer) Horizon() ocp.Horizon { return o.horizon }

// Problem returns the problem for a reference of the given length,
// building it on first use.
func (o *TrajectoryOptimizer) Problem(waypoints int) (*ocp.Problem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.problem(waypoints)
}

func (o *TrajectoryOptimizer) problem(waypoints int) (*ocp.Problem, error) {
	if prob, ok := o.problems[waypoints]; ok {
		return prob, nil
	}
	prob, err := o.mode.Build(o.model, o.horizon, waypoints)
	if err != nil {
		return nil, err
	}
	o.problems[waypoints] = prob
	o.logger.Infow("problem built",
		"mode", o.mode.Kind(),
		"vars", prob.NumVars(),
		"params", prob.NumParams(),
		"constraints", prob.NumConstraints(),
	)
	return prob, nil
}

// GenerateTrajectory plans from initial toward reference. An explicit
// warmStart wins; otherwise the last accepted plan shifted by one step
// primes the solver, and zeros when there is none. A solve that does not
// converge returns a *dynamo.SolveFailure and leaves the stored plan alone.
func (o *TrajectoryOptimizer) GenerateTrajectory(ctx context.Context, initial dynamo.State, reference []dynamo.State, warmStart *dynamo.Sequence) (*Trajectory, error) {
	if len(initial) != o.model.StateDim() {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "initial_state",
			"got %d values, model state has %d", len(initial), o.model.StateDim())
	}
	if !initial.IsValid() {
		return nil, dynamo.NewConfigError(dynamo.ErrInvalidState, "initial_state", "%v", initial)
	}
	if err := o.mode.ValidateReference(o.model, reference); err != nil {
		return nil, err
	}

	var warnings []*dynamo.DegenerateGeometryWarning
	if gc, ok := o.mode.(planner.GeometryChecker); ok {
		if segs := gc.DegenerateSegments(reference); len(segs) > 0 {
			o.logger.Warnw("reference has degenerate segments", "segments", segs)
			warnings = append(warnings, &dynamo.DegenerateGeometryWarning{Segments: segs})
		}
	}

	o.mu.Lock()
	prob, err := o.problem(len(reference))
	var last *dynamo.Sequence
	if o.last != nil {
		shifted := o.last.Shift()
		last = &shifted
	}
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	params, err := prob.Layout().Pack(initial, reference)
	if err != nil {
		return nil, err
	}
	guess, err := o.initialGuess(prob, warmStart, last)
	if err != nil {
		return nil, err
	}

	sol, err := o.solver.Solve(ctx, prob, params, guess)
	if err != nil {
		o.logger.Warnw("solve errored", "mode", o.mode.Kind(), "error", err)
		return nil, err
	}
	if failure := sol.Failure(); failure != nil {
		o.logger.Warnw("solve did not converge",
			"mode", o.mode.Kind(), "status", sol.Status,
			"cost", sol.Cost, "infeasibility", sol.Infeasibility)
		return nil, failure
	}

	seq, err := dynamo.SequenceFrom(prob.ControlDim(), sol.U)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	accepted := seq.Clone()
	o.last = &accepted
	o.mu.Unlock()

	o.logger.Infow("trajectory generated",
		"mode", o.mode.Kind(),
		"cost", sol.Cost,
		"outer", sol.OuterIterations,
		"inner", sol.InnerIterations,
		"duration", sol.SolveTime,
	)
	return &Trajectory{
		Controls:        seq,
		States:          prob.Rollout(seq.Data, params),
		Cost:            sol.Cost,
		Status:          sol.Status,
		OuterIterations: sol.OuterIterations,
		InnerIterations: sol.InnerIterations,
		SolveTime:       sol.SolveTime,
		Warnings:        warnings,
	}, nil
}

func (o *TrajectoryOptimizer) initialGuess(prob *ocp.Problem, warmStart, last *dynamo.Sequence) ([]float64, error) {
	switch {
	case warmStart != nil:
		nu, n := warmStart.Shape()
		if nu != prob.ControlDim() || n != prob.Horizon().Steps || len(warmStart.Data) != prob.NumVars() {
			return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "warm_start",
				"shape (%d, %d), expected (%d, %d)", nu, n, prob.ControlDim(), prob.Horizon().Steps)
		}
		return append([]float64(nil), warmStart.Data...), nil
	case last != nil && len(last.Data) == prob.NumVars():
		return last.Data, nil
	default:
		return nil, nil
	}
}

// LastSolution returns a copy of the last accepted control sequence.
func (o *TrajectoryOptimizer) LastSolution() (dynamo.Sequence, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return dynamo.Sequence{}, false
	}
	return o.last.Clone(), true
}

// Reset drops the stored plan so the next call starts from zeros.
func (o *TrajectoryOptimizer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = nil
}

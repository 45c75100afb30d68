// Package solver turns an assembled problem and its parameters into control
// values.
//
// [AugmentedLagrangian] is the pure-Go backend: an outer multiplier/penalty
// loop around L-BFGS with finite-difference gradients. [NLopt] wraps SLSQP
// and needs the nlopt build tag. The tcp subpackage speaks the same
// contract to a solver running in another process.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// ErrBackendUnavailable is returned by backends compiled out of this build.
var ErrBackendUnavailable = errors.New("solver: backend not available in this build")

// Solver solves a problem for one parameter vector. guess may be nil,
// meaning all zeros.
type Solver interface {
	Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*Solution, error)
}

type Status int

const (
	Converged Status = iota
	NotConvergedIterations
	NotConvergedOutOfTime
	NotConvergedCost
	NotConvergedNotFiniteComputation
)

var statusNames = map[Status]string{
	Converged:                        "Converged",
	NotConvergedIterations:           "NotConvergedIterations",
	NotConvergedOutOfTime:            "NotConvergedOutOfTime",
	NotConvergedCost:                 "NotConvergedCost",
	NotConvergedNotFiniteComputation: "NotConvergedNotFiniteComputation",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown solver status %q", name)
}

// Solution is what a solve returns, converged or not.
type Solution struct {
	Status          Status
	U               []float64
	Multipliers     []float64
	Cost            float64
	Infeasibility   float64
	Penalty         float64
	OuterIterations int
	InnerIterations int
	SolveTime       time.Duration
}

func (s *Solution) Converged() bool { return s.Status == Converged }

// Failure converts a non-converged solution into the typed error callers
// match with errors.As. It returns nil for a converged solution.
func (s *Solution) Failure() error {
	if s.Converged() {
		return nil
	}
	return &dynamo.SolveFailure{
		Status:        s.Status.String(),
		LastIterate:   append([]float64(nil), s.U...),
		Iterations:    s.OuterIterations,
		Cost:          s.Cost,
		Infeasibility: s.Infeasibility,
	}
}

// Config holds the solver options. It is passed by value and never
// mutated by a solver.
type Config struct {
	Tolerance           float64
	InitialTolerance    float64
	DeltaTolerance      float64
	MaxOuterIterations  int
	MaxInnerIterations  int
	InitialPenalty      float64
	PenaltyUpdateFactor float64
	MaxDuration         time.Duration
	// WarmStart reuses the multipliers of the last converged solve of the
	// same problem.
	WarmStart bool
}

func DefaultConfig() Config {
	return Config{
		Tolerance:           1e-4,
		InitialTolerance:    1e-4,
		DeltaTolerance:      1e-2,
		MaxOuterIterations:  20,
		MaxInnerIterations:  500,
		InitialPenalty:      1,
		PenaltyUpdateFactor: 10,
		MaxDuration:         5 * time.Second,
		WarmStart:           true,
	}
}

func (c Config) Validate() error {
	var err error
	positive := func(field string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, field, "must be positive and finite, got %v", v))
		}
	}
	positive("tolerance", c.Tolerance)
	positive("initial_tolerance", c.InitialTolerance)
	positive("delta_tolerance", c.DeltaTolerance)
	positive("initial_penalty", c.InitialPenalty)
	if c.InitialTolerance < c.Tolerance {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "initial_tolerance",
			"%v is tighter than tolerance %v", c.InitialTolerance, c.Tolerance))
	}
	if !(c.PenaltyUpdateFactor > 1) {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "penalty_update_factor",
			"must exceed 1, got %v", c.PenaltyUpdateFactor))
	}
	if c.MaxOuterIterations < 1 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "max_outer_iterations",
			"must be at least 1, got %d", c.MaxOuterIterations))
	}
	if c.MaxInnerIterations < 1 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "max_inner_iterations",
			"must be at least 1, got %d", c.MaxInnerIterations))
	}
	if c.MaxDuration < 0 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "max_duration",
			"must not be negative, got %v", c.MaxDuration))
	}
	return err
}

// CheckInputs validates the parameter and guess lengths against prob and
// returns the guess to start from.
func CheckInputs(prob *ocp.Problem, params, guess []float64) ([]float64, error) {
	if prob == nil {
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "problem", "nil problem")
	}
	if len(params) != prob.NumParams() {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "parameter",
			"got %d values, problem %s expects %d", len(params), prob.Name(), prob.NumParams())
	}
	if guess == nil {
		return make([]float64, prob.NumVars()), nil
	}
	if len(guess) != prob.NumVars() {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "initial_guess",
			"got %d values, problem %s expects %d", len(guess), prob.Name(), prob.NumVars())
	}
	return append([]float64(nil), guess...), nil
}

// Deadline returns the earlier of ctx's deadline and start+limit. A zero
// time means no deadline.
func Deadline(ctx context.Context, start time.Time, limit time.Duration) time.Time {
	var deadline time.Time
	if limit > 0 {
		deadline = start.Add(limit)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

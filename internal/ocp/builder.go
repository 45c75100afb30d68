package ocp

import (
	"fmt"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// StageTerm contributes cost at step t for the state x reached before
// applying u.
type StageTerm interface {
	Stage(t int, x dynamo.State, u dynamo.Control, p Params) float64
}

// TerminalTerm contributes cost at the final predicted state.
type TerminalTerm interface {
	Terminal(x dynamo.State, p Params) float64
}

// StepContext is what a per-step constraint sees at step t.
type StepContext struct {
	T    int
	Dt   float64
	X    dynamo.State   // state before u
	Next dynamo.State   // state after u
	U    dynamo.Control // control at t
	Prev dynamo.Control // control at t-1, zero at t=0
	P    Params
}

// StepConstraint emits Rows() values per step, bounded per row.
type StepConstraint interface {
	Name() string
	Rows() int
	Bounds() (lower, upper []float64)
	Eval(ctx StepContext, dst []float64)
}

// Penalized is implemented by constraints that suggest an initial
// augmented-Lagrangian penalty.
type Penalized interface {
	Penalty() float64
}

// Builder is the generic horizon unroll shared by every planning mode.
type Builder struct {
	Name        string
	Model       dynamo.Model
	Horizon     Horizon
	Layout      ParamLayout
	Stage       []StageTerm
	Terminal    []TerminalTerm
	Bounds      Rectangle
	Constraints []StepConstraint
}

func (b Builder) validate() error {
	if b.Model == nil {
		return dynamo.NewConfigError(dynamo.ErrConfiguration, "model", "no model set")
	}
	if err := b.Horizon.Validate(); err != nil {
		return err
	}
	if b.Layout.StateDim != b.Model.StateDim() {
		return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "layout",
			"parameter state dim %d, model state dim %d", b.Layout.StateDim, b.Model.StateDim())
	}
	if b.Layout.Waypoints < 1 {
		return dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference", "no waypoints in layout")
	}
	nvars := b.Model.ControlDim() * b.Horizon.Steps
	if !b.Bounds.IsEmpty() && b.Bounds.Dim() != nvars {
		return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "bounds",
			"box has %d entries per side, decision variable has %d", b.Bounds.Dim(), nvars)
	}
	for _, c := range b.Constraints {
		lo, hi := c.Bounds()
		if len(lo) != c.Rows() || len(hi) != c.Rows() {
			return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, c.Name(),
				"%d rows but bounds of length %d/%d", c.Rows(), len(lo), len(hi))
		}
	}
	return nil
}

// Build assembles the immutable problem description.
func (b Builder) Build() (*Problem, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	nu := b.Model.ControlDim()
	n := b.Horizon.Steps

	prob := &Problem{
		name:     b.Name,
		model:    b.Model,
		horizon:  b.Horizon,
		layout:   b.Layout,
		nu:       nu,
		stage:    append([]StageTerm(nil), b.Stage...),
		terminal: append([]TerminalTerm(nil), b.Terminal...),
		steps:    append([]StepConstraint(nil), b.Constraints...),
	}
	if !b.Bounds.IsEmpty() {
		bounds, err := NewRectangle(b.Bounds.Lower, b.Bounds.Upper)
		if err != nil {
			return nil, fmt.Errorf("ocp %s: %w", b.Name, err)
		}
		prob.bounds = bounds
	}

	offset := 0
	for _, c := range prob.steps {
		lo, hi := c.Bounds()
		set, err := Replicate(lo, hi, n)
		if err != nil {
			return nil, fmt.Errorf("ocp %s: constraint %s: %w", b.Name, c.Name(), err)
		}
		penalty := 0.0
		if pc, ok := c.(Penalized); ok {
			penalty = pc.Penalty()
		}
		prob.groups = append(prob.groups, Constraint{
			Name:    c.Name(),
			Offset:  offset,
			Rows:    c.Rows() * n,
			Set:     set,
			Penalty: penalty,
		})
		offset += c.Rows() * n
	}
	prob.numConstraints = offset
	sets := make([]Rectangle, len(prob.groups))
	for i, g := range prob.groups {
		sets[i] = g.Set
	}
	prob.constraintSet = Concat(sets...)

	return prob, nil
}

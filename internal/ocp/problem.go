package ocp

import (
	"github.com/san-kum/hitchplan/internal/dynamo"
)

// Constraint is one (expression, lower, upper) triple of the problem.
// Its rows occupy [Offset, Offset+Rows) of the stacked constraint vector
// and are ordered step-major within the group.
type Constraint struct {
	Name    string
	Offset  int
	Rows    int
	Set     Rectangle
	Penalty float64
}

// Problem is an assembled OCP. It is safe to share read-only across
// solves as long as its model is.
type Problem struct {
	name    string
	model   dynamo.Model
	horizon Horizon
	layout  ParamLayout
	nu      int

	stage    []StageTerm
	terminal []TerminalTerm
	steps    []StepConstraint
	bounds   Rectangle

	groups         []Constraint
	numConstraints int
	constraintSet  Rectangle
}

func (p *Problem) Name() string        { return p.name }
func (p *Problem) Horizon() Horizon    { return p.horizon }
func (p *Problem) Layout() ParamLayout { return p.layout }
func (p *Problem) ControlDim() int     { return p.nu }
func (p *Problem) NumVars() int        { return p.nu * p.horizon.Steps }
func (p *Problem) NumParams() int      { return p.layout.Dim() }
func (p *Problem) NumConstraints() int { return p.numConstraints }
func (p *Problem) Model() dynamo.Model { return p.model }
func (p *Problem) HasBounds() bool     { return !p.bounds.IsEmpty() }

// Bounds returns a copy of the decision-variable box.
func (p *Problem) Bounds() Rectangle {
	if p.bounds.IsEmpty() {
		return Rectangle{}
	}
	r, _ := NewRectangle(p.bounds.Lower, p.bounds.Upper)
	return r
}

// Constraints lists the constraint groups in stacking order.
func (p *Problem) Constraints() []Constraint {
	return append([]Constraint(nil), p.groups...)
}

// ConstraintSet is the box every stacked constraint value must lie in.
func (p *Problem) ConstraintSet() Rectangle {
	return p.constraintSet
}

func (p *Problem) control(u []float64, t int) dynamo.Control {
	return dynamo.Control(u[t*p.nu : (t+1)*p.nu])
}

// Cost evaluates the total cost of decision u under parameters params.
func (p *Problem) Cost(u, params []float64) float64 {
	view := p.layout.View(params)
	x := view.Initial()
	total := 0.0
	for t := 0; t < p.horizon.Steps; t++ {
		ut := p.control(u, t)
		for _, term := range p.stage {
			total += term.Stage(t, x, ut, view)
		}
		x = p.model.Step(x, ut, p.horizon.Dt)
	}
	for _, term := range p.terminal {
		total += term.Terminal(x, view)
	}
	return total
}

// EvalConstraints writes the stacked constraint vector into dst, which
// must have NumConstraints entries.
func (p *Problem) EvalConstraints(dst, u, params []float64) {
	if p.numConstraints == 0 {
		return
	}
	view := p.layout.View(params)
	x := view.Initial()
	prev := make(dynamo.Control, p.nu)
	for t := 0; t < p.horizon.Steps; t++ {
		ut := p.control(u, t)
		next := p.model.Step(x, ut, p.horizon.Dt)
		ctx := StepContext{T: t, Dt: p.horizon.Dt, X: x, Next: next, U: ut, Prev: prev, P: view}
		for i, c := range p.steps {
			g := p.groups[i]
			rows := c.Rows()
			off := g.Offset + t*rows
			c.Eval(ctx, dst[off:off+rows])
		}
		x = next
		prev = ut
	}
}

// Rollout predicts the N+1 states visited under u, starting at the
// initial-state parameter.
func (p *Problem) Rollout(u, params []float64) []dynamo.State {
	view := p.layout.View(params)
	states := make([]dynamo.State, 0, p.horizon.Steps+1)
	x := view.Initial().Clone()
	states = append(states, x)
	for t := 0; t < p.horizon.Steps; t++ {
		x = p.model.Step(x, p.control(u, t), p.horizon.Dt)
		states = append(states, x)
	}
	return states
}

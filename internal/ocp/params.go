package ocp

import (
	"github.com/san-kum/hitchplan/internal/dynamo"
)

// ParamLayout fixes how the flat parameter vector is laid out:
// [x0 (StateDim), w_0 (StateDim), ..., w_{Waypoints-1} (StateDim)].
type ParamLayout struct {
	StateDim  int
	Waypoints int
}

func (l ParamLayout) Dim() int {
	return l.StateDim * (1 + l.Waypoints)
}

// Pack flattens an initial state and its reference into a parameter vector.
func (l ParamLayout) Pack(initial dynamo.State, reference []dynamo.State) ([]float64, error) {
	if len(initial) != l.StateDim {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "initial_state",
			"expected %d values, got %d", l.StateDim, len(initial))
	}
	if len(reference) != l.Waypoints {
		return nil, dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference",
			"expected %d waypoints, got %d", l.Waypoints, len(reference))
	}
	p := make([]float64, 0, l.Dim())
	p = append(p, initial...)
	for i, w := range reference {
		if len(w) != l.StateDim {
			return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "reference",
				"waypoint %d has %d values, expected %d", i, len(w), l.StateDim)
		}
		p = append(p, w...)
	}
	return p, nil
}

// View interprets p without copying it.
func (l ParamLayout) View(p []float64) Params {
	return Params{layout: l, raw: p}
}

// Params is a read-only view over a packed parameter vector.
type Params struct {
	layout ParamLayout
	raw    []float64
}

func (p Params) Initial() dynamo.State {
	return dynamo.State(p.raw[:p.layout.StateDim])
}

func (p Params) Waypoints() int {
	return p.layout.Waypoints
}

func (p Params) Waypoint(k int) dynamo.State {
	n := p.layout.StateDim
	off := n * (1 + k)
	return dynamo.State(p.raw[off : off+n])
}

// Terminal is the last reference waypoint.
func (p Params) Terminal() dynamo.State {
	return p.Waypoint(p.layout.Waypoints - 1)
}

func (p Params) Raw() []float64 {
	return p.raw
}

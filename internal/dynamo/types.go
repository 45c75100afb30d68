package dynamo

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

func (s State) Add(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Add(result[:n], other[:n])
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	n := min(len(s), len(other))
	floats.Sub(result[:n], other[:n])
	return result
}

// Position returns the planar (x, y) part of a pose.
func (s State) Position() []float64 {
	return s[:2]
}

type Control []float64

func (c Control) Clone() Control {
	out := make(Control, len(c))
	copy(out, c)
	return out
}

// Sequence is a control sequence stored in decision-variable order
// [u_0, u_1, ..., u_{N-1}], each u_t holding Nu values.
type Sequence struct {
	Nu   int
	Data []float64
}

func NewSequence(nu, steps int) Sequence {
	return Sequence{Nu: nu, Data: make([]float64, nu*steps)}
}

// SequenceFrom wraps flat decision values. The slice is copied.
func SequenceFrom(nu int, data []float64) (Sequence, error) {
	if nu <= 0 || len(data)%nu != 0 {
		return Sequence{}, fmt.Errorf("%w: %d values do not split into controls of size %d",
			ErrDimensionMismatch, len(data), nu)
	}
	s := Sequence{Nu: nu, Data: make([]float64, len(data))}
	copy(s.Data, data)
	return s, nil
}

func (s Sequence) Steps() int {
	if s.Nu == 0 {
		return 0
	}
	return len(s.Data) / s.Nu
}

// Shape returns (nu, N).
func (s Sequence) Shape() (int, int) {
	return s.Nu, s.Steps()
}

// At returns a copy of the control applied at step t.
func (s Sequence) At(t int) Control {
	return Control(s.Data[t*s.Nu : (t+1)*s.Nu]).Clone()
}

// Row returns control channel i over the whole horizon.
func (s Sequence) Row(i int) []float64 {
	n := s.Steps()
	row := make([]float64, n)
	for t := 0; t < n; t++ {
		row[t] = s.Data[t*s.Nu+i]
	}
	return row
}

// Matrix reshapes the sequence into nu rows of N columns.
func (s Sequence) Matrix() [][]float64 {
	m := make([][]float64, s.Nu)
	for i := range m {
		m[i] = s.Row(i)
	}
	return m
}

func (s Sequence) Clone() Sequence {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return Sequence{Nu: s.Nu, Data: data}
}

// Shift drops the first control and repeats the last one, keeping the
// horizon length. It is the usual warm start for the next planning cycle.
func (s Sequence) Shift() Sequence {
	out := s.Clone()
	n := s.Steps()
	if n < 2 {
		return out
	}
	copy(out.Data, s.Data[s.Nu:])
	copy(out.Data[(n-1)*s.Nu:], s.Data[(n-1)*s.Nu:])
	return out
}

// System describes continuous kinematics.
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Model is the discrete kinematic contract used by problem builders.
type Model interface {
	StateDim() int
	ControlDim() int
	VelocityMax() float64
	Step(x State, u Control, dt float64) State
}

// Controller computes the control to apply at time t. An error stops the
// closed loop.
type Controller interface {
	Compute(ctx context.Context, x State, t float64) (Control, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

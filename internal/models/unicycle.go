package models

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/integrators"
)

// Unicycle is the planar pose model (x, y, θ) driven by (v, w).
type Unicycle struct {
	MaxVelocity float64

	integrator dynamo.Integrator
}

func NewUnicycle() *Unicycle {
	return &Unicycle{
		MaxVelocity: 1.0,
		integrator:  integrators.NewEuler(),
	}
}

func (m *Unicycle) WithIntegrator(integ dynamo.Integrator) *Unicycle {
	m.integrator = integ
	return m
}

func (m *Unicycle) StateDim() int {
	return 3
}

func (m *Unicycle) ControlDim() int {
	return 2
}

func (m *Unicycle) VelocityMax() float64 {
	return m.MaxVelocity
}

func (m *Unicycle) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	sinT, cosT := math.Sincos(x[2])
	return dynamo.State{u[0] * cosT, u[0] * sinT, u[1]}
}

func (m *Unicycle) Step(x dynamo.State, u dynamo.Control, dt float64) dynamo.State {
	return m.integrator.Step(m, x, u, 0, dt)
}

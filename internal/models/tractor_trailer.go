package models

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/integrators"
)

// TractorTrailer is the hitched vehicle with state (x, y, θ, γ) and
// control (v, w). θ is the heading and γ the articulation angle.
type TractorTrailer struct {
	WheelBase   float64
	LengthFront float64
	LengthBack  float64
	MaxVelocity float64

	integrator dynamo.Integrator
}

func NewTractorTrailer() *TractorTrailer {
	return &TractorTrailer{
		WheelBase:   1.0,
		LengthFront: 1.0,
		LengthBack:  1.0,
		MaxVelocity: 1.0,
		integrator:  integrators.NewEuler(),
	}
}

// WithIntegrator replaces the discretization used by Step.
func (m *TractorTrailer) WithIntegrator(integ dynamo.Integrator) *TractorTrailer {
	m.integrator = integ
	return m
}

func (m *TractorTrailer) StateDim() int {
	return 4
}

func (m *TractorTrailer) ControlDim() int {
	return 2
}

func (m *TractorTrailer) VelocityMax() float64 {
	return m.MaxVelocity
}

func (m *TractorTrailer) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, gamma := x[2], x[3]
	v, w := u[0], u[1]

	sinG, cosG := math.Sincos(gamma)
	sinT, cosT := math.Sincos(theta)

	dx := v*cosT*cosG - m.LengthBack*cosG*w
	dy := v*sinT*cosG - m.LengthBack*sinG*w
	dtheta := v*sinG/m.LengthBack - w*(m.LengthBack/m.LengthFront)*cosG
	dgamma := dtheta - w

	return dynamo.State{dx, dy, dtheta, dgamma}
}

func (m *TractorTrailer) Step(x dynamo.State, u dynamo.Control, dt float64) dynamo.State {
	return m.integrator.Step(m, x, u, 0, dt)
}

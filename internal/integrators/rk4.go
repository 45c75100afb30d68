package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// RK4 is the classic fourth-order Runge-Kutta step with the control held
// constant over dt. It keeps no state between calls.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	stage := make([]float64, n)

	k1 := dyn.Derive(x, u, t)
	floats.AddScaledTo(stage, x, dt/2, k1)
	k2 := dyn.Derive(stage, u, t+dt/2)
	floats.AddScaledTo(stage, x, dt/2, k2)
	k3 := dyn.Derive(stage, u, t+dt/2)
	floats.AddScaledTo(stage, x, dt, k3)
	k4 := dyn.Derive(stage, u, t+dt)

	result := make(dynamo.State, n)
	copy(result, x)
	floats.AddScaled(result, dt/6, k1)
	floats.AddScaled(result, dt/3, k2)
	floats.AddScaled(result, dt/3, k3)
	floats.AddScaled(result, dt/6, k4)
	return result
}

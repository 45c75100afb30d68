// Package dynamo provides the core primitives shared by the planner.
//
// The package defines the vectors and interfaces every other package
// builds on:
//
//   - [State]: vector representing a vehicle pose (x, y, θ[, γ])
//   - [Control]: vector of actuation commands (v, w)
//   - [Sequence]: a flattened control sequence over a planning horizon
//   - [System]: continuous kinematics (dX/dt = f(X, u, t))
//   - [Integrator]: numerical discretization of a [System]
//   - [Model]: the discrete step contract consumed by problem builders
//
// # Example
//
//	m := models.NewTractorTrailer()
//	next := m.Step(dynamo.State{0, 0, 0, 0}, dynamo.Control{0.5, 0}, 0.1)
//
// # Thread Safety
//
// Models are read-only after construction and may be shared across
// optimizers. Integrators with scratch buffers (RK4) are not.
package dynamo

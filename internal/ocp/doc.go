// Package ocp describes finite-horizon optimal control problems.
//
// A [Builder] unrolls a [dynamo.Model] over a [Horizon], summing stage and
// terminal cost terms and stacking per-step constraint terms, and emits an
// immutable [Problem]. Decision variables are the flattened control
// sequence [u_0, ..., u_{N-1}]; parameters are the initial state followed
// by the reference waypoints (see [ParamLayout]).
//
// Expressions are plain Go closures over (u, p). Derivatives are left to
// the solver backend.
package ocp

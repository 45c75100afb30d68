// Package control provides the controllers the closed loop runs.
//
// Controllers implement [dynamo.Controller]:
//
//   - [MPC]: receding-horizon controller around a trajectory optimizer
//   - [OpenLoop]: replays a planned control sequence
//   - [Stop]: zero control
//
// # Usage
//
//	mpc := control.NewMPC(opt, reference, control.WithReplanEvery(5))
//	s := sim.New(model, mpc, logger)
//	// Compute is called every step and re-plans every fifth step
package control

package cost

import (
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"

	"gonum.org/v1/gonum/floats"
)

// ReferenceFunc picks the reference pose tracked at step t.
type ReferenceFunc func(t int, p ocp.Params) dynamo.State

// Goal tracks the terminal waypoint at every step.
func Goal(t int, p ocp.Params) dynamo.State {
	return p.Terminal()
}

// WaypointAt tracks waypoint t, holding the last one once the path runs out.
func WaypointAt(t int, p ocp.Params) dynamo.State {
	return p.Waypoint(min(t, p.Waypoints()-1))
}

// Stage is q_xy·‖p−p_ref‖² + q_θ·(θ−θ_ref)² + r_u·‖u‖².
type Stage struct {
	PositionXY float64
	Heading    float64
	Effort     float64
	Reference  ReferenceFunc
}

func NewStage(w Weights, ref ReferenceFunc) Stage {
	return Stage{PositionXY: w.PositionXY, Heading: w.Heading, Effort: w.Effort, Reference: ref}
}

func (s Stage) Stage(t int, x dynamo.State, u dynamo.Control, p ocp.Params) float64 {
	ref := s.Reference(t, p)
	return poseError(x, ref, s.PositionXY, s.Heading) + s.Effort*floats.Dot(u, u)
}

// Terminal is the stage form without effort, evaluated once at the final
// predicted state against the terminal waypoint.
type Terminal struct {
	PositionXY float64
	Heading    float64
}

func NewTerminal(w Weights) Terminal {
	return Terminal{PositionXY: w.TerminalXY, Heading: w.TerminalHeading}
}

func (c Terminal) Terminal(x dynamo.State, p ocp.Params) float64 {
	return poseError(x, p.Terminal(), c.PositionXY, c.Heading)
}

func poseError(x, ref dynamo.State, qxy, qtheta float64) float64 {
	dx := x[0] - ref[0]
	dy := x[1] - ref[1]
	dtheta := x[2] - ref[2]
	return qxy*(dx*dx+dy*dy) + qtheta*dtheta*dtheta
}

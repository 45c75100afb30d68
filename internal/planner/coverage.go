package planner

import (
	"github.com/san-kum/hitchplan/internal/constraints"
	"github.com/san-kum/hitchplan/internal/cost"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// degenerateLength is the segment length below which a path segment is
// reported as degenerate.
const degenerateLength = 1e-9

// Coverage follows an ordered waypoint path, penalizing cross-track error
// in addition to the per-step waypoint tracking.
type Coverage struct {
	weights cost.Weights
	window  int
}

func NewCoverage(weights []float64, window int) (*Coverage, error) {
	w, err := parseWeights(KindCoverage, weights, DefaultCoverageWeights, true)
	if err != nil {
		return nil, err
	}
	if window < 0 {
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "path_window", "must be non-negative, got %d", window)
	}
	return &Coverage{weights: w, window: window}, nil
}

func (m *Coverage) Kind() Kind            { return KindCoverage }
func (m *Coverage) Weights() cost.Weights { return m.weights }

func (m *Coverage) ValidateReference(model dynamo.Model, reference []dynamo.State) error {
	return validateWaypoints(model, reference, 2, 0)
}

func (m *Coverage) DegenerateSegments(reference []dynamo.State) []int {
	return cost.DegenerateSegments(reference, degenerateLength)
}

func (m *Coverage) Build(model dynamo.Model, h ocp.Horizon, waypoints int) (*ocp.Problem, error) {
	if err := checkPose(KindCoverage, model); err != nil {
		return nil, err
	}
	if waypoints < 2 {
		return nil, dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference",
			"coverage needs at least 2 waypoints, got %d", waypoints)
	}
	box, err := constraints.ControlBox(model, h.Steps)
	if err != nil {
		return nil, err
	}
	return ocp.Builder{
		Name:    string(KindCoverage),
		Model:   model,
		Horizon: h,
		Layout:  layoutFor(model, waypoints),
		Stage: []ocp.StageTerm{
			cost.NewStage(m.weights, cost.WaypointAt),
			cost.NewCrossTrack(m.weights, m.window),
		},
		Terminal: []ocp.TerminalTerm{cost.NewTerminal(m.weights)},
		Bounds:   box,
	}.Build()
}

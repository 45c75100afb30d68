package planner

import (
	"github.com/san-kum/hitchplan/internal/constraints"
	"github.com/san-kum/hitchplan/internal/cost"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// PointToPoint drives the vehicle to a single goal pose.
type PointToPoint struct {
	weights cost.Weights
}

func NewPointToPoint(weights []float64) (*PointToPoint, error) {
	w, err := parseWeights(KindPointToPoint, weights, DefaultPointToPointWeights, false)
	if err != nil {
		return nil, err
	}
	return &PointToPoint{weights: w}, nil
}

func (m *PointToPoint) Kind() Kind            { return KindPointToPoint }
func (m *PointToPoint) Weights() cost.Weights { return m.weights }

func (m *PointToPoint) ValidateReference(model dynamo.Model, reference []dynamo.State) error {
	return validateWaypoints(model, reference, 1, 1)
}

func (m *PointToPoint) Build(model dynamo.Model, h ocp.Horizon, waypoints int) (*ocp.Problem, error) {
	if err := checkPose(KindPointToPoint, model); err != nil {
		return nil, err
	}
	box, err := constraints.ControlBox(model, h.Steps)
	if err != nil {
		return nil, err
	}
	return ocp.Builder{
		Name:     string(KindPointToPoint),
		Model:    model,
		Horizon:  h,
		Layout:   layoutFor(model, waypoints),
		Stage:    []ocp.StageTerm{cost.NewStage(m.weights, cost.Goal)},
		Terminal: []ocp.TerminalTerm{cost.NewTerminal(m.weights)},
		Bounds:   box,
	}.Build()
}

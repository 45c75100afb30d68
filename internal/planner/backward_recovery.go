package planner

import (
	"github.com/san-kum/hitchplan/internal/constraints"
	"github.com/san-kum/hitchplan/internal/cost"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// BackwardRecovery plans a short maneuver of the tractor-trailer from
// standstill to a goal pose while keeping accelerations and the hitch
// angle within limits.
type BackwardRecovery struct {
	weights   cost.Weights
	penalties [2]float64
}

func NewBackwardRecovery(weights, penalties []float64) (*BackwardRecovery, error) {
	w, err := parseWeights(KindBackwardRecovery, weights, DefaultBackwardRecoveryWeights, false)
	if err != nil {
		return nil, err
	}
	if penalties == nil {
		penalties = DefaultRecoveryPenalties
	}
	if len(penalties) != 2 || penalties[0] < 0 || penalties[1] < 0 {
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "penalties",
			"need two non-negative acceleration penalties, got %v", penalties)
	}
	return &BackwardRecovery{weights: w, penalties: [2]float64{penalties[0], penalties[1]}}, nil
}

func (m *BackwardRecovery) Kind() Kind            { return KindBackwardRecovery }
func (m *BackwardRecovery) Weights() cost.Weights { return m.weights }

func (m *BackwardRecovery) Penalties() [2]float64 { return m.penalties }

func (m *BackwardRecovery) ValidateReference(model dynamo.Model, reference []dynamo.State) error {
	return validateWaypoints(model, reference, 1, 1)
}

func (m *BackwardRecovery) Build(model dynamo.Model, h ocp.Horizon, waypoints int) (*ocp.Problem, error) {
	if err := checkPose(KindBackwardRecovery, model); err != nil {
		return nil, err
	}
	articulation := constraints.NewArticulation(constraints.RecoveryArticulationMax)
	if err := articulation.Check(model); err != nil {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "model", "%v", err)
	}
	box, err := constraints.RecoveryBox(h.Steps)
	if err != nil {
		return nil, err
	}
	return ocp.Builder{
		Name:     string(KindBackwardRecovery),
		Model:    model,
		Horizon:  h,
		Layout:   layoutFor(model, waypoints),
		Stage:    []ocp.StageTerm{cost.NewStage(m.weights, cost.Goal)},
		Terminal: []ocp.TerminalTerm{cost.NewTerminal(m.weights)},
		Bounds:   box,
		Constraints: []ocp.StepConstraint{
			constraints.LinearAcceleration(constraints.RecoveryLinearAccelMin, constraints.RecoveryLinearAccelMax, m.penalties[0]),
			constraints.AngularAcceleration(constraints.RecoveryAngularAccelMin, constraints.RecoveryAngularAccelMax, m.penalties[1]),
			articulation,
		},
	}.Build()
}

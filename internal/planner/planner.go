// Package planner assembles the optimal control problem of each planning
// mode from cost and constraint terms.
//
// All modes share one horizon unroll ([ocp.Builder]); they differ only in
// the reference shape, the cost-term list and the constraint-term list:
//
//   - [PointToPoint]: single goal, stage + terminal cost, control box
//   - [Coverage]: waypoint path, adds the cross-track term
//   - [BackwardRecovery]: single goal on the tractor-trailer, asymmetric
//     box plus acceleration and articulation bounds
package planner

import (
	"fmt"

	"github.com/san-kum/hitchplan/internal/cost"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

type Kind string

const (
	KindPointToPoint     Kind = "point_to_point"
	KindCoverage         Kind = "coverage"
	KindBackwardRecovery Kind = "backward_recovery"
)

// Mode builds the problem for one planning mode.
type Mode interface {
	Kind() Kind
	Weights() cost.Weights

	// ValidateReference rejects references of the wrong shape before any
	// problem is assembled.
	ValidateReference(model dynamo.Model, reference []dynamo.State) error

	// Build assembles the problem for a reference of the given length.
	Build(model dynamo.Model, h ocp.Horizon, waypoints int) (*ocp.Problem, error)
}

// GeometryChecker is implemented by modes whose reference can contain
// degenerate geometry that the cost tolerates but callers may want to see.
type GeometryChecker interface {
	DegenerateSegments(reference []dynamo.State) []int
}

// Options carries the mode-specific knobs that are not weights.
type Options struct {
	PathWindow int
	Penalties  []float64
}

// Default weight vectors per mode.
var (
	DefaultPointToPointWeights     = []float64{10, 0.1, 1, 200, 2}
	DefaultCoverageWeights         = []float64{10, 0.1, 1, 200, 2, 2}
	DefaultBackwardRecoveryWeights = []float64{10, 0.1, 0.1, 200, 2}
	DefaultRecoveryPenalties       = []float64{60, 40}
)

// New returns the mode for kind. Nil weights select the mode defaults.
func New(kind Kind, weights []float64, opts Options) (Mode, error) {
	switch kind {
	case KindPointToPoint:
		return NewPointToPoint(weights)
	case KindCoverage:
		return NewCoverage(weights, opts.PathWindow)
	case KindBackwardRecovery:
		return NewBackwardRecovery(weights, opts.Penalties)
	default:
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "mode", "unknown planning mode %q", kind)
	}
}

func Kinds() []Kind {
	return []Kind{KindPointToPoint, KindCoverage, KindBackwardRecovery}
}

func parseWeights(kind Kind, values, defaults []float64, crossTrack bool) (cost.Weights, error) {
	if values == nil {
		values = defaults
	}
	w, err := cost.ParseWeights(values, crossTrack)
	if err != nil {
		return cost.Weights{}, dynamo.NewConfigError(dynamo.ErrConfiguration, "weights", "%s: %v", kind, err)
	}
	return w, nil
}

func validateWaypoints(model dynamo.Model, reference []dynamo.State, minCount, maxCount int) error {
	if len(reference) < minCount || (maxCount > 0 && len(reference) > maxCount) {
		want := fmt.Sprintf("at least %d", minCount)
		if maxCount == minCount {
			want = fmt.Sprintf("exactly %d", minCount)
		}
		return dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference",
			"need %s waypoint(s), got %d", want, len(reference))
	}
	for i, w := range reference {
		if len(w) != model.StateDim() {
			return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "reference",
				"waypoint %d has %d values, model state has %d", i, len(w), model.StateDim())
		}
		if !w.IsValid() {
			return dynamo.NewConfigError(dynamo.ErrInvalidState, "reference", "waypoint %d is not finite", i)
		}
	}
	return nil
}

func layoutFor(model dynamo.Model, waypoints int) ocp.ParamLayout {
	return ocp.ParamLayout{StateDim: model.StateDim(), Waypoints: waypoints}
}

// checkPose requires the (x, y, θ) components the pose costs read.
func checkPose(kind Kind, model dynamo.Model) error {
	if model.StateDim() < 3 {
		return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "model",
			"%s needs a pose state (x, y, θ), model has %d states", kind, model.StateDim())
	}
	if model.ControlDim() != 2 {
		return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "model",
			"%s needs controls (v, w), model has %d", kind, model.ControlDim())
	}
	return nil
}

// Package constraints builds the box bounds on controls and the
// per-step bounds on derived quantities (accelerations, articulation).
package constraints

import (
	"fmt"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// Backward recovery limits.
const (
	RecoveryLinearVelocity  = 1.5
	RecoveryAngularVelocity = 0.5

	RecoveryLinearAccelMin  = -2.5
	RecoveryLinearAccelMax  = 1.0
	RecoveryAngularAccelMin = -1.5
	RecoveryAngularAccelMax = 1.5

	RecoveryArticulationMax = 0.785
)

// ControlBox bounds every control by the model's velocity limit:
// v, w ∈ [−v_max, v_max] at each of the steps.
func ControlBox(model dynamo.Model, steps int) (ocp.Rectangle, error) {
	vmax := model.VelocityMax()
	lower := make([]float64, model.ControlDim())
	upper := make([]float64, model.ControlDim())
	for i := range lower {
		lower[i], upper[i] = -vmax, vmax
	}
	return AsymmetricBox(lower, upper, steps)
}

// AsymmetricBox replicates per-control bounds over the horizon.
func AsymmetricBox(lower, upper dynamo.Control, steps int) (ocp.Rectangle, error) {
	if steps <= 0 {
		return ocp.Rectangle{}, dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "horizon",
			"cannot bound %d steps", steps)
	}
	if len(lower) != len(upper) {
		return ocp.Rectangle{}, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "bounds",
			"%d lower but %d upper", len(lower), len(upper))
	}
	r, err := ocp.Replicate(lower, upper, steps)
	if err != nil {
		return ocp.Rectangle{}, dynamo.NewConfigError(dynamo.ErrConfiguration, "bounds", "%v", err)
	}
	return r, nil
}

// RecoveryBox is the asymmetric control box used by backward recovery.
func RecoveryBox(steps int) (ocp.Rectangle, error) {
	return AsymmetricBox(
		dynamo.Control{-RecoveryLinearVelocity, -RecoveryAngularVelocity},
		dynamo.Control{RecoveryLinearVelocity, RecoveryAngularVelocity},
		steps,
	)
}

// Acceleration bounds (u_t[Channel] − u_{t−1}[Channel]) / dt, with the
// control before the first step taken as zero.
type Acceleration struct {
	Label   string
	Channel int
	Min     float64
	Max     float64
	Initial float64
}

func LinearAcceleration(lo, hi, penalty float64) Acceleration {
	return Acceleration{Label: "linear_acceleration", Channel: 0, Min: lo, Max: hi, Initial: penalty}
}

func AngularAcceleration(lo, hi, penalty float64) Acceleration {
	return Acceleration{Label: "angular_acceleration", Channel: 1, Min: lo, Max: hi, Initial: penalty}
}

func (a Acceleration) Name() string { return a.Label }
func (a Acceleration) Rows() int    { return 1 }

func (a Acceleration) Bounds() (lower, upper []float64) {
	return []float64{a.Min}, []float64{a.Max}
}

func (a Acceleration) Penalty() float64 { return a.Initial }

func (a Acceleration) Eval(ctx ocp.StepContext, dst []float64) {
	dst[0] = (ctx.U[a.Channel] - ctx.Prev[a.Channel]) / ctx.Dt
}

// Articulation bounds the hitch angle γ of the state reached after each
// control.
type Articulation struct {
	Index int
	Max   float64
}

func NewArticulation(limit float64) Articulation {
	return Articulation{Index: 3, Max: limit}
}

func (a Articulation) Name() string { return "articulation" }
func (a Articulation) Rows() int    { return 1 }

func (a Articulation) Bounds() (lower, upper []float64) {
	return []float64{-a.Max}, []float64{a.Max}
}

func (a Articulation) Eval(ctx ocp.StepContext, dst []float64) {
	dst[0] = ctx.Next[a.Index]
}

// Check verifies the term can read the model's state.
func (a Articulation) Check(model dynamo.Model) error {
	if a.Index >= model.StateDim() {
		return fmt.Errorf("articulation index %d outside %d-dimensional state", a.Index, model.StateDim())
	}
	return nil
}

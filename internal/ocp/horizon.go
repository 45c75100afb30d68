package ocp

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// floorGuard absorbs float error in T/dt so that 0.3/0.1 yields 3 steps.
const floorGuard = 1e-9

type Horizon struct {
	Steps int
	Dt    float64
}

// NewHorizon derives N = floor(T/dt) and rejects horizons with no steps.
func NewHorizon(T, dt float64) (Horizon, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return Horizon{}, dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "dt", "must be positive and finite, got %v", dt)
	}
	if math.IsNaN(T) || math.IsInf(T, 0) {
		return Horizon{}, dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "horizon", "must be finite, got %v", T)
	}
	ratio := T / dt
	n := int(math.Floor(ratio + floorGuard*math.Max(1, math.Abs(ratio))))
	if n < 1 {
		return Horizon{}, dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "horizon", "T=%v dt=%v gives N=%d", T, dt, n)
	}
	return Horizon{Steps: n, Dt: dt}, nil
}

// Validate reports whether the horizon can be assembled.
func (h Horizon) Validate() error {
	if h.Steps < 1 {
		return dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "horizon", "N=%d", h.Steps)
	}
	if !(h.Dt > 0) {
		return dynamo.NewConfigError(dynamo.ErrInvalidHorizon, "dt", "must be positive, got %v", h.Dt)
	}
	return nil
}

func (h Horizon) Duration() float64 {
	return float64(h.Steps) * h.Dt
}

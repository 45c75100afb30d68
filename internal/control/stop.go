package control

import (
	"context"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// Stop always returns the zero control, which holds a kinematic vehicle
// in place.
type Stop struct {
	dim int
}

func NewStop(dim int) *Stop {
	return &Stop{
		dim: dim,
	}
}

func (s *Stop) Compute(ctx context.Context, x dynamo.State, t float64) (dynamo.Control, error) {
	return make(dynamo.Control, s.dim), nil
}

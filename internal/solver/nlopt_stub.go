//go:build !nlopt

package solver

import (
	"context"

	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
)

const NLoptAvailable = false

type NLopt struct{}

func NewNLopt(cfg Config, logger logging.Logger) (*NLopt, error) {
	return nil, ErrBackendUnavailable
}

func (s *NLopt) Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*Solution, error) {
	return nil, ErrBackendUnavailable
}

//go:build nlopt

package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-nlopt/nlopt"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
)

const NLoptAvailable = true

// NLopt solves the problem with SLSQP. Constraint rows become one-sided
// inequalities; infinite bounds are dropped.
type NLopt struct {
	cfg    Config
	logger logging.Logger
}

var _ Solver = (*NLopt)(nil)

func NewNLopt(cfg Config, logger logging.Logger) (*NLopt, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NLopt{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

type nloptResult struct {
	x   []float64
	f   float64
	err error
}

func (s *NLopt) Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*Solution, error) {
	u, err := CheckInputs(prob, params, guess)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	n := prob.NumVars()

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return nil, fmt.Errorf("nlopt creation: %w", err)
	}
	defer opt.Destroy()

	maxEval := s.cfg.MaxOuterIterations * s.cfg.MaxInnerIterations
	evals := 0
	cost := func(x []float64) float64 { return prob.Cost(x, params) }
	objective := func(x, gradient []float64) float64 {
		evals++
		if len(gradient) > 0 {
			fd.Gradient(gradient, cost, x, &fd.Settings{Formula: fd.Central})
		}
		return cost(x)
	}

	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetFtolRel(s.cfg.Tolerance),
		opt.SetXtolRel(s.cfg.Tolerance),
		opt.SetMaxEval(maxEval),
	)
	if prob.HasBounds() {
		b := prob.Bounds()
		err = multierr.Combine(err, opt.SetLowerBounds(b.Lower), opt.SetUpperBounds(b.Upper))
	}
	deadline := Deadline(ctx, start, s.cfg.MaxDuration)
	if !deadline.IsZero() {
		err = multierr.Combine(err, opt.SetMaxTime(time.Until(deadline).Seconds()))
	}
	if nc := prob.NumConstraints(); nc > 0 {
		err = multierr.Combine(err, s.addConstraints(opt, prob, params))
	}
	if err != nil {
		return nil, fmt.Errorf("nlopt setup: %w", err)
	}

	done := make(chan nloptResult, 1)
	go func() {
		x, f, err := opt.Optimize(u)
		done <- nloptResult{x, f, err}
	}()

	var res nloptResult
	select {
	case <-ctx.Done():
		stopErr := opt.ForceStop()
		res = <-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, multierr.Combine(ctx.Err(), stopErr)
		}
	case res = <-done:
	}
	if res.x == nil {
		return nil, fmt.Errorf("nlopt: %w", res.err)
	}

	x := res.x
	if prob.HasBounds() {
		prob.Bounds().Project(x, x)
	}
	sol := &Solution{
		Status:          Converged,
		U:               x,
		Cost:            prob.Cost(x, params),
		OuterIterations: 1,
		InnerIterations: evals,
		SolveTime:       time.Since(start),
	}
	if nc := prob.NumConstraints(); nc > 0 {
		f := make([]float64, nc)
		prob.EvalConstraints(f, x, params)
		sol.Infeasibility = prob.ConstraintSet().Violation(f)
	}

	switch {
	case math.IsNaN(sol.Cost) || math.IsInf(sol.Cost, 0):
		sol.Status = NotConvergedNotFiniteComputation
	case !deadline.IsZero() && time.Now().After(deadline):
		sol.Status = NotConvergedOutOfTime
	case evals >= maxEval || res.err != nil || sol.Infeasibility > s.cfg.DeltaTolerance:
		sol.Status = NotConvergedIterations
	}
	s.logger.Debugw("nlopt solve finished",
		"problem", prob.Name(), "status", sol.Status, "cost", sol.Cost,
		"evaluations", evals, "duration", sol.SolveTime, "error", res.err)
	return sol, nil
}

func (s *NLopt) addConstraints(opt *nlopt.NLopt, prob *ocp.Problem, params []float64) error {
	n := prob.NumVars()
	nc := prob.NumConstraints()
	set := prob.ConstraintSet()

	var upper, lower []int
	for i := 0; i < nc; i++ {
		if !math.IsInf(set.Upper[i], 1) {
			upper = append(upper, i)
		}
		if !math.IsInf(set.Lower[i], -1) {
			lower = append(lower, i)
		}
	}
	m := len(upper) + len(lower)
	if m == 0 {
		return nil
	}

	values := make([]float64, nc)
	jac := mat.NewDense(nc, n, nil)
	eval := func(y, x []float64) { prob.EvalConstraints(y, x, params) }

	rows := func(result, x, gradient []float64) {
		eval(values, x)
		for k, i := range upper {
			result[k] = values[i] - set.Upper[i]
		}
		for k, i := range lower {
			result[len(upper)+k] = set.Lower[i] - values[i]
		}
		if len(gradient) == 0 {
			return
		}
		fd.Jacobian(jac, eval, x, &fd.JacobianSettings{Formula: fd.Central})
		for k, i := range upper {
			copy(gradient[k*n:(k+1)*n], jac.RawRowView(i))
		}
		for k, i := range lower {
			r := len(upper) + k
			floats.ScaleTo(gradient[r*n:(r+1)*n], -1, jac.RawRowView(i))
		}
	}

	tol := make([]float64, m)
	for i := range tol {
		tol[i] = s.cfg.Tolerance
	}
	return opt.AddInequalityMConstraint(rows, tol)
}

package solver

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
)

const (
	// sufficientDecrease is the fraction of the previous infeasibility the
	// next outer iterate must reach to keep the penalty unchanged.
	sufficientDecrease = 0.1
	toleranceShrink    = 0.1
	maxPenalty         = 1e8
	lbfgsMemory        = 15
	// maxRestarts bounds the fresh-memory L-BFGS runs after a line-search
	// failure within one inner solve.
	maxRestarts = 3
	// stallDecrease is the relative decrease below which a restarted run
	// counts as having made no progress.
	stallDecrease = 1e-10
)

// AugmentedLagrangian solves
//
//	min f(u)  s.t.  F(u) ∈ C,  u ∈ U
//
// by minimizing f(u) + ρ/2·dist²(F(u) + y/ρ, C) with L-BFGS and updating
// y ← y + ρ(F(u) − Π_C(F(u) + y/ρ)) between inner solves. The control box U
// is appended to C as identity rows and the accepted iterate is projected
// onto U before it is returned.
type AugmentedLagrangian struct {
	cfg    Config
	logger logging.Logger

	mu          sync.Mutex
	multipliers map[*ocp.Problem][]float64
}

var _ Solver = (*AugmentedLagrangian)(nil)

func NewAugmentedLagrangian(cfg Config, logger logging.Logger) (*AugmentedLagrangian, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AugmentedLagrangian{
		cfg:         cfg,
		logger:      logging.OrNop(logger),
		multipliers: make(map[*ocp.Problem][]float64),
	}, nil
}

func (s *AugmentedLagrangian) Config() Config { return s.cfg }

// Reset forgets the stored multipliers.
func (s *AugmentedLagrangian) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multipliers = make(map[*ocp.Problem][]float64)
}

// almState is the scratch of one solve.
type almState struct {
	prob   *ocp.Problem
	params []float64
	set    ocp.Rectangle
	nc     int

	y, rho  []float64
	f, w, p []float64
}

func (st *almState) evalF(dst, u []float64) {
	st.prob.EvalConstraints(dst[:st.nc], u, st.params)
	copy(dst[st.nc:], u[:len(dst)-st.nc])
}

func (st *almState) lagrangian(u []float64) float64 {
	total := st.prob.Cost(u, st.params)
	if len(st.y) == 0 {
		return total
	}
	st.evalF(st.f, u)
	for i := range st.f {
		st.w[i] = st.f[i] + st.y[i]/st.rho[i]
	}
	st.set.Project(st.p, st.w)
	for i := range st.w {
		d := st.w[i] - st.p[i]
		total += 0.5 * st.rho[i] * d * d
	}
	return total
}

// update applies the multiplier step at u and returns the fixed-point
// residual ‖F(u) − Π_C(F(u) + y/ρ)‖∞.
func (st *almState) update(u []float64) float64 {
	if len(st.y) == 0 {
		return 0
	}
	st.evalF(st.f, u)
	for i := range st.f {
		st.w[i] = st.f[i] + st.y[i]/st.rho[i]
	}
	st.set.Project(st.p, st.w)
	residual := 0.0
	for i := range st.f {
		residual = math.Max(residual, math.Abs(st.f[i]-st.p[i]))
		st.y[i] = st.rho[i] * (st.w[i] - st.p[i])
	}
	return residual
}

func (s *AugmentedLagrangian) newState(prob *ocp.Problem, params []float64) *almState {
	st := &almState{prob: prob, params: params, nc: prob.NumConstraints()}
	sets := []ocp.Rectangle{prob.ConstraintSet()}
	if prob.HasBounds() {
		sets = append(sets, prob.Bounds())
	}
	st.set = ocp.Concat(sets...)
	m := st.set.Dim()
	if m == 0 {
		return st
	}

	st.y = make([]float64, m)
	st.rho = make([]float64, m)
	st.f = make([]float64, m)
	st.w = make([]float64, m)
	st.p = make([]float64, m)

	for i := range st.rho {
		st.rho[i] = s.cfg.InitialPenalty
	}
	for _, g := range prob.Constraints() {
		if g.Penalty <= 0 {
			continue
		}
		for i := g.Offset; i < g.Offset+g.Rows; i++ {
			st.rho[i] = g.Penalty
		}
	}

	if s.cfg.WarmStart {
		s.mu.Lock()
		if y, ok := s.multipliers[prob]; ok && len(y) == m {
			copy(st.y, y)
		}
		s.mu.Unlock()
	}
	return st
}

func (s *AugmentedLagrangian) Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*Solution, error) {
	u, err := CheckInputs(prob, params, guess)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	deadline := Deadline(ctx, start, s.cfg.MaxDuration)
	st := s.newState(prob, params)

	sol := &Solution{Status: NotConvergedIterations}
	if c := prob.Cost(u, params); math.IsNaN(c) || math.IsInf(c, 0) {
		sol.Status = NotConvergedCost
		sol.U = u
		sol.Cost = c
		sol.SolveTime = time.Since(start)
		return sol, nil
	}

	eps := s.cfg.InitialTolerance
	prevResidual := math.Inf(1)
	for sol.OuterIterations < s.cfg.MaxOuterIterations {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			sol.Status = NotConvergedOutOfTime
			break
		}
		var budget time.Duration
		if !deadline.IsZero() {
			budget = time.Until(deadline)
			if budget <= 0 {
				sol.Status = NotConvergedOutOfTime
				break
			}
		}

		sol.OuterIterations++
		res, innerDone, err := s.minimize(st.lagrangian, u, eps, budget)
		if err != nil {
			return nil, err
		}
		copy(u, res.X)
		sol.InnerIterations += res.MajorIterations

		if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
			sol.Status = NotConvergedNotFiniteComputation
			break
		}
		residual := st.update(u)
		sol.Infeasibility = residual

		if res.Status == optimize.RuntimeLimit {
			sol.Status = NotConvergedOutOfTime
			break
		}
		if innerDone && eps <= s.cfg.Tolerance && residual <= s.cfg.DeltaTolerance {
			sol.Status = Converged
			break
		}
		if len(st.y) == 0 && eps <= s.cfg.Tolerance {
			break
		}

		if residual > sufficientDecrease*prevResidual {
			for i := range st.rho {
				st.rho[i] = math.Min(maxPenalty, st.rho[i]*s.cfg.PenaltyUpdateFactor)
			}
		}
		prevResidual = residual
		eps = math.Max(s.cfg.Tolerance, eps*toleranceShrink)
	}

	if prob.HasBounds() {
		prob.Bounds().Project(u, u)
	}
	sol.U = u
	sol.Cost = prob.Cost(u, params)
	if len(st.y) > 0 {
		sol.Multipliers = append([]float64(nil), st.y...)
		sol.Penalty = floats.Max(st.rho)
		if sol.Status == Converged && s.cfg.WarmStart {
			s.mu.Lock()
			s.multipliers[prob] = append([]float64(nil), st.y...)
			s.mu.Unlock()
		}
	}
	sol.SolveTime = time.Since(start)

	s.logger.Debugw("solve finished",
		"problem", prob.Name(),
		"status", sol.Status,
		"cost", sol.Cost,
		"infeasibility", sol.Infeasibility,
		"outer", sol.OuterIterations,
		"inner", sol.InnerIterations,
		"duration", sol.SolveTime,
	)
	return sol, nil
}

// minimize runs L-BFGS on f from x0 and reports whether the inner solve
// finished. A line-search failure restarts L-BFGS with an empty memory from
// the best iterate. The solve counts as finished once a restart stops
// decreasing f or the gradient falls within the loose stall threshold.
func (s *AugmentedLagrangian) minimize(f func([]float64) float64, x0 []float64, eps float64, budget time.Duration) (*optimize.Result, bool, error) {
	grad := func(g, x []float64) {
		fd.Gradient(g, f, x, &fd.Settings{Formula: fd.Central})
	}
	start := time.Now()
	x := append([]float64(nil), x0...)
	fx := f(x)

	var res *optimize.Result
	major := 0
	stalled := false
	for restart := 0; restart <= maxRestarts; restart++ {
		var runtime time.Duration
		if budget > 0 {
			runtime = budget - time.Since(start)
			if runtime <= 0 {
				if res == nil {
					res = &optimize.Result{Location: optimize.Location{X: append([]float64(nil), x...), F: fx}}
				}
				res.Status = optimize.RuntimeLimit
				break
			}
		}
		settings := &optimize.Settings{
			GradientThreshold: eps,
			MajorIterations:   s.cfg.MaxInnerIterations - major,
			Runtime:           runtime,
			Converger: &optimize.FunctionConverge{
				Absolute:   eps * eps,
				Relative:   1e-12,
				Iterations: 50,
			},
		}
		r, err := optimize.Minimize(optimize.Problem{Func: f, Grad: grad}, x, settings, &optimize.LBFGS{Store: lbfgsMemory})
		if r == nil {
			return nil, false, err
		}
		major += r.MajorIterations
		res = r
		decrease := fx - r.F
		if r.F <= fx {
			copy(x, r.X)
			fx = r.F
		}
		if r.Status != optimize.Failure {
			break
		}
		s.logger.Debugw("inner solve restarting", "restart", restart, "f", r.F, "error", err)
		if decrease <= stallDecrease*(1+math.Abs(fx)) {
			stalled = true
			break
		}
		if major >= s.cfg.MaxInnerIterations {
			break
		}
	}
	res.MajorIterations = major
	copy(res.X, x)
	res.F = fx

	switch res.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		return res, true, nil
	case optimize.Failure:
		if stalled {
			return res, true, nil
		}
		g := make([]float64, len(x))
		grad(g, x)
		return res, floats.Norm(g, math.Inf(1)) <= math.Sqrt(eps)*(1+math.Abs(fx)), nil
	}
	return res, false, nil
}

// Package optim tunes cost weights against closed-loop metrics.
package optim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/experiment"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/planner"
	"github.com/san-kum/hitchplan/internal/sim"
)

// WeightNames are the positions of the weight vector.
var WeightNames = []string{"q_xy", "q_theta", "r_u", "qN_xy", "qN_theta", "q_cte"}

func weightIndex(name string) int {
	for i, n := range WeightNames {
		if n == name {
			return i
		}
	}
	return -1
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
	logger     logging.Logger
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d params but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if weightIndex(p) < 0 {
			return nil, fmt.Errorf("grid search: unknown weight %q", p)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %q", p)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1, logger: logging.NewNop()}, nil
}

func (g *GridSearch) WithWorkers(n int) *GridSearch {
	if n > 0 {
		g.workers = n
	}
	return g
}

func (g *GridSearch) WithLogger(l logging.Logger) *GridSearch {
	g.logger = logging.OrNop(l)
	return g
}

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Params  map[string]float64
	Weights []float64
	Value   float64
	Err     error
}

// Search runs the closed loop of base once per grid point and returns the
// point with the lowest metric value, along with every evaluated point.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, registry *experiment.Registry, metricName string) (best *Candidate, candidates []Candidate, err error) {
	defaults, err := baseWeights(base)
	if err != nil {
		return nil, nil, err
	}

	var exps []*experiment.Experiment
	defer func() {
		for _, exp := range exps {
			err = multierr.Append(err, exp.Close(ctx))
		}
	}()

	var grid []map[string]float64
	g.searchRecursive(0, make(map[string]float64), &grid)

	candidates = make([]Candidate, len(grid))
	jobs := make([]sim.Job, 0, len(grid))
	slots := make([]int, 0, len(grid))
	for i, params := range grid {
		weights := append([]float64(nil), defaults...)
		for name, v := range params {
			idx := weightIndex(name)
			if idx >= len(weights) {
				candidates[i] = Candidate{Params: params, Value: math.Inf(1),
					Err: fmt.Errorf("mode %s has no %s weight", base.Mode, name)}
				weights = nil
				break
			}
			weights[idx] = v
		}
		if weights == nil {
			continue
		}
		candidates[i] = Candidate{Params: params, Weights: weights, Value: math.Inf(1)}

		cfg := base.Clone()
		cfg.Weights = weights
		exp, expErr := experiment.New(ctx, cfg, registry, nil)
		if expErr != nil {
			candidates[i].Err = expErr
			continue
		}
		exps = append(exps, exp)
		jobs = append(jobs, exp.NewLoop().Job)
		slots = append(slots, i)
	}

	results, batchErr := sim.RunBatch(ctx, jobs, g.workers)
	if ctx.Err() != nil {
		return nil, candidates, ctx.Err()
	}

	for j, res := range results {
		c := &candidates[slots[j]]
		if res == nil {
			c.Err = fmt.Errorf("closed loop failed")
			continue
		}
		v, ok := res.Metrics[metricName]
		if !ok {
			c.Err = fmt.Errorf("metric %q not recorded", metricName)
			continue
		}
		c.Value = v
		if best == nil || v < best.Value {
			best = c
		}
	}
	g.logger.Infow("grid search finished", "points", len(grid), "run", len(jobs), "metric", metricName)

	if best == nil {
		return nil, candidates, multierr.Combine(fmt.Errorf("grid search: no grid point succeeded"), batchErr)
	}
	out := *best
	return &out, candidates, nil
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, grid *[]map[string]float64) {
	if depth == len(g.paramNames) {
		point := make(map[string]float64, len(current))
		for k, v := range current {
			point[k] = v
		}
		*grid = append(*grid, point)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(depth+1, newParams, grid)
	}
}

func baseWeights(cfg *config.Config) ([]float64, error) {
	mode, err := planner.New(cfg.Kind(), cfg.Weights, cfg.PlannerOptions())
	if err != nil {
		return nil, err
	}
	return mode.Weights().Values(cfg.Kind() == planner.KindCoverage), nil
}

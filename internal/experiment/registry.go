package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/constraints"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/integrators"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/metrics"
	"github.com/san-kum/hitchplan/internal/models"
	"github.com/san-kum/hitchplan/internal/planner"
	"github.com/san-kum/hitchplan/internal/solver"
	"github.com/san-kum/hitchplan/internal/solver/tcp"
)

// SolverFactory builds a backend from the configuration. The returned
// closer releases whatever the backend holds and may be nil.
type SolverFactory func(ctx context.Context, cfg *config.Config, logger logging.Logger) (solver.Solver, func(context.Context) error, error)

type Registry struct {
	solvers map[string]SolverFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		solvers: make(map[string]SolverFactory),
	}

	r.solvers["alm"] = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (solver.Solver, func(context.Context) error, error) {
		s, err := solver.NewAugmentedLagrangian(cfg.SolverOptions(), logger)
		return s, nil, err
	}
	r.solvers["nlopt"] = func(ctx context.Context, cfg *config.Config, logger logging.Logger) (solver.Solver, func(context.Context) error, error) {
		s, err := solver.NewNLopt(cfg.SolverOptions(), logger)
		return s, nil, err
	}
	r.solvers["tcp"] = newRemoteSolver

	return r
}

// newRemoteSolver connects to an optimizer server. Only a server the
// manager launched itself is killed on close.
func newRemoteSolver(ctx context.Context, cfg *config.Config, logger logging.Logger) (solver.Solver, func(context.Context) error, error) {
	opts := []tcp.ManagerOption{tcp.WithLogger(logger)}
	owned := len(cfg.Solver.ServerCommand) > 0
	if owned {
		opts = append(opts, tcp.WithCommand(cfg.Solver.ServerCommand[0], cfg.Solver.ServerCommand[1:]...))
	}
	m := tcp.NewManager(cfg.Solver.ServerAddr, opts...)
	if err := m.Start(ctx); err != nil {
		return nil, nil, err
	}
	if !owned {
		return m, nil, nil
	}
	return m, m.Terminate, nil
}

// Register adds or replaces a solver backend.
func (r *Registry) Register(name string, f SolverFactory) {
	r.solvers[name] = f
}

func (r *Registry) GetSolver(ctx context.Context, cfg *config.Config, logger logging.Logger) (solver.Solver, func(context.Context) error, error) {
	fn, ok := r.solvers[cfg.Solver.Backend]
	if !ok {
		return nil, nil, fmt.Errorf("unknown solver backend: %s", cfg.Solver.Backend)
	}
	return fn(ctx, cfg, logger)
}

func (r *Registry) GetModel(cfg *config.Config) (dynamo.Model, error) {
	return models.Build(cfg.ModelParams())
}

func (r *Registry) GetMode(cfg *config.Config) (planner.Mode, error) {
	return planner.New(cfg.Kind(), cfg.Weights, cfg.PlannerOptions())
}

func (r *Registry) ListSolvers() []string {
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListModels() []string {
	return models.List()
}

func (r *Registry) ListModes() []string {
	kinds := planner.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func (r *Registry) ListIntegrators() []string {
	return integrators.List()
}

// DefaultMetrics picks the closed-loop metrics that make sense for the
// mode and model.
func (r *Registry) DefaultMetrics(cfg *config.Config, model dynamo.Model) []dynamo.Metric {
	ref := cfg.ReferenceStates()
	ms := []dynamo.Metric{
		metrics.NewControlEffort(),
		metrics.NewGoalDistance(ref[len(ref)-1]),
	}
	if cfg.Kind() == planner.KindCoverage {
		ms = append(ms, metrics.NewCrossTrack(ref))
	}
	if model.StateDim() >= 4 {
		ms = append(ms, metrics.NewHitchSafety(constraints.RecoveryArticulationMax))
	}
	return ms
}

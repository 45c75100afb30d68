// Package experiment wires a configuration into a planner, a solver
// backend and a closed-loop simulation.
package experiment

import (
	"context"

	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/control"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/optimizer"
	"github.com/san-kum/hitchplan/internal/sim"
	"github.com/san-kum/hitchplan/internal/solver"
)

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    logging.Logger
	model     dynamo.Model
	solver    solver.Solver
	optimizer *optimizer.TrajectoryOptimizer
	closer    func(context.Context) error
	observers []dynamo.Observer
}

// New validates cfg and builds the optimizer for it. The experiment owns
// the solver backend until Close.
func New(ctx context.Context, cfg *config.Config, registry *Registry, logger logging.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	logger = logging.OrNop(logger)

	model, err := registry.GetModel(cfg)
	if err != nil {
		return nil, dynamo.NewConfigError(dynamo.ErrConfiguration, "model", "%v", err)
	}
	mode, err := registry.GetMode(cfg)
	if err != nil {
		return nil, err
	}
	h, err := cfg.HorizonSpec()
	if err != nil {
		return nil, err
	}

	s, closer, err := registry.GetSolver(ctx, cfg, logger.Named("solver"))
	if err != nil {
		return nil, err
	}
	opt, err := optimizer.New(optimizer.Options{
		Mode:    mode,
		Model:   model,
		Horizon: h,
		Solver:  s,
		Logger:  logger.Named("optimizer"),
	})
	if err != nil {
		if closer != nil {
			err = multierr.Combine(err, closer(ctx))
		}
		return nil, err
	}

	return &Experiment{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		model:     model,
		solver:    s,
		optimizer: opt,
		closer:    closer,
	}, nil
}

func (e *Experiment) Config() *config.Config                    { return e.cfg }
func (e *Experiment) Model() dynamo.Model                       { return e.model }
func (e *Experiment) Solver() solver.Solver                     { return e.solver }
func (e *Experiment) Optimizer() *optimizer.TrajectoryOptimizer { return e.optimizer }

// AddObserver registers an observer on every closed loop built afterwards.
func (e *Experiment) AddObserver(o dynamo.Observer) {
	e.observers = append(e.observers, o)
}

// Problem returns the problem the configured reference solves, which is
// what an optimizer server must be serving.
func (e *Experiment) Problem() (*ocp.Problem, error) {
	return e.optimizer.Problem(len(e.cfg.Reference))
}

// Plan runs a single solve from the configured initial state.
func (e *Experiment) Plan(ctx context.Context) (*optimizer.Trajectory, error) {
	return e.optimizer.GenerateTrajectory(ctx, e.cfg.InitialStateVector(), e.cfg.ReferenceStates(), nil)
}

// Loop is one closed-loop run ready to execute.
type Loop struct {
	Job        sim.Job
	Controller *control.MPC
}

// NewLoop builds the receding-horizon controller and the simulator
// around it.
func (e *Experiment) NewLoop() *Loop {
	mpc := control.NewMPC(e.optimizer, e.cfg.ReferenceStates(), e.model.ControlDim(),
		control.WithReplanEvery(e.cfg.Loop.ReplanEvery),
		control.WithPlanTimeout(e.cfg.Solver.MaxDuration),
		control.WithMPCLogger(e.logger.Named("mpc")))

	s := sim.New(e.model, mpc, e.logger.Named("sim"))
	for _, m := range e.registry.DefaultMetrics(e.cfg, e.model) {
		s.AddMetric(m)
	}
	for _, o := range e.observers {
		s.AddObserver(o)
	}

	ref := e.cfg.ReferenceStates()
	return &Loop{
		Job: sim.Job{
			Name:    e.cfg.Mode,
			Sim:     s,
			Initial: e.cfg.InitialStateVector(),
			Config: sim.Config{
				Dt:            e.cfg.Dt,
				Duration:      e.cfg.Loop.Duration,
				ValidateState: true,
				Goal:          ref[len(ref)-1],
				GoalTolerance: e.cfg.Loop.GoalTolerance,
			},
		},
		Controller: mpc,
	}
}

// Track runs the closed loop to completion.
func (e *Experiment) Track(ctx context.Context) (*sim.Result, control.Stats, error) {
	loop := e.NewLoop()
	e.optimizer.Reset()
	res, err := loop.Job.Sim.Run(ctx, loop.Job.Initial, loop.Job.Config)
	stats := loop.Controller.Stats()
	e.logger.Infow("tracking finished",
		"mode", e.cfg.Mode, "replans", stats.Replans, "failures", stats.Failures,
		"holds", stats.Holds, "safe_stops", stats.SafeStops)
	return res, stats, err
}

// Replay executes a planned control sequence open loop through the
// simulator. The final state should match traj.Final() up to float error.
func (e *Experiment) Replay(ctx context.Context, traj *optimizer.Trajectory) (*sim.Result, error) {
	s := sim.New(e.model, control.NewOpenLoop(traj.Controls), e.logger.Named("replay"))
	for _, m := range e.registry.DefaultMetrics(e.cfg, e.model) {
		s.AddMetric(m)
	}
	steps := traj.Controls.Steps()
	return s.Run(ctx, e.cfg.InitialStateVector(), sim.Config{
		Dt:            e.cfg.Dt,
		Duration:      float64(steps) * e.cfg.Dt,
		ValidateState: true,
	})
}

// Close releases the solver backend.
func (e *Experiment) Close(ctx context.Context) error {
	if e.closer == nil {
		return nil
	}
	closer := e.closer
	e.closer = nil
	return closer(ctx)
}

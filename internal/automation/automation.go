// Package automation runs scripted scenarios and Monte Carlo robustness
// checks on top of experiments.
package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/experiment"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/sim"
	"github.com/san-kum/hitchplan/internal/storage"
)

const (
	ActionPlan  = "plan"
	ActionTrack = "track"
)

// Scenario is a scripted sequence of planning runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset, or from the defaults of Mode, and
// applies the listed overrides.
type ScenarioStep struct {
	Name         string      `yaml:"name"`
	Mode         string      `yaml:"mode"`
	Preset       string      `yaml:"preset"`
	Action       string      `yaml:"action"`
	Weights      []float64   `yaml:"weights,omitempty"`
	InitialState []float64   `yaml:"initial_state,omitempty"`
	Reference    [][]float64 `yaml:"reference,omitempty"`
	Backend      string      `yaml:"backend,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Config resolves the step into a full configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	name := s.Preset
	if name == "" {
		name = config.DefaultPresets[s.Mode]
	}
	cfg := config.GetPreset(s.Mode, name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %q for mode %q", name, s.Mode)
	}
	if s.Weights != nil {
		cfg.Weights = s.Weights
	}
	if s.InitialState != nil {
		cfg.InitialState = s.InitialState
	}
	if s.Reference != nil {
		cfg.Reference = s.Reference
	}
	if s.Backend != "" {
		cfg.Solver.Backend = s.Backend
	}
	return cfg, nil
}

// StepResult is the stored outcome of one step.
type StepResult struct {
	Step   string
	RunID  string
	Status string
	Err    error
}

// RunScenario executes every step in order and stores each run. A failed
// step is recorded and the scenario carries on.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, st *storage.Store, logger logging.Logger) ([]StepResult, error) {
	logger = logging.OrNop(logger)
	results := make([]StepResult, 0, len(scenario.Steps))
	var errs error

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		logger.Infow("running scenario step", "scenario", scenario.Name, "step", name, "index", i+1, "of", len(scenario.Steps))

		res := StepResult{Step: name}
		run, err := runStep(ctx, step, registry, logger)
		if err == nil {
			res.Status = run.Status
			res.RunID, err = st.Save(run)
		}
		if err != nil {
			res.Err = err
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
		results = append(results, res)

		if ctx.Err() != nil {
			return results, multierr.Append(errs, ctx.Err())
		}
	}
	return results, errs
}

func runStep(ctx context.Context, step ScenarioStep, registry *experiment.Registry, logger logging.Logger) (run *storage.Run, err error) {
	cfg, err := step.Config()
	if err != nil {
		return nil, err
	}
	exp, err := experiment.New(ctx, cfg, registry, logger)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, exp.Close(ctx)) }()

	switch step.Action {
	case ActionPlan, "":
		traj, err := exp.Plan(ctx)
		if err != nil {
			return nil, err
		}
		return storage.FromTrajectory(cfg, traj), nil
	case ActionTrack:
		res, _, err := exp.Track(ctx)
		if err != nil {
			return nil, err
		}
		return storage.FromResult(cfg, res), nil
	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

// MonteCarloConfig perturbs the initial state of Base uniformly within
// ±Perturbation[i] per state component and runs the closed loop.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation []float64
	NumTrials    int
	Workers      int
	Seed         int64
}

type MonteCarloResult struct {
	TrialID      int
	InitState    dynamo.State
	FinalState   dynamo.State
	ReachedGoal  bool
	GoalDistance float64
	Err          error
}

// RunMonteCarlo runs the trials concurrently. Every trial gets its own
// experiment.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry) (results []MonteCarloResult, err error) {
	if len(cfg.Perturbation) != len(cfg.Base.InitialState) {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "perturbation",
			"got %d values for a %d-dimensional state", len(cfg.Perturbation), len(cfg.Base.InitialState))
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var exps []*experiment.Experiment
	defer func() {
		for _, exp := range exps {
			err = multierr.Append(err, exp.Close(ctx))
		}
	}()

	results = make([]MonteCarloResult, cfg.NumTrials)
	jobs := make([]sim.Job, 0, cfg.NumTrials)
	slots := make([]int, 0, cfg.NumTrials)
	for trial := 0; trial < cfg.NumTrials; trial++ {
		trialCfg := cfg.Base.Clone()
		for i, v := range cfg.Base.InitialState {
			trialCfg.InitialState[i] = v + (rng.Float64()-0.5)*2*cfg.Perturbation[i]
		}
		results[trial] = MonteCarloResult{TrialID: trial, InitState: trialCfg.InitialStateVector()}

		exp, expErr := experiment.New(ctx, trialCfg, registry, nil)
		if expErr != nil {
			results[trial].Err = expErr
			continue
		}
		exps = append(exps, exp)
		jobs = append(jobs, exp.NewLoop().Job)
		slots = append(slots, trial)
	}

	runs, err := sim.RunBatch(ctx, jobs, cfg.Workers)
	for j, res := range runs {
		r := &results[slots[j]]
		if res == nil {
			r.Err = fmt.Errorf("trial %d failed", r.TrialID)
			continue
		}
		r.FinalState = res.Final()
		r.ReachedGoal = res.ReachedGoal
		r.GoalDistance = res.Metrics["goal_distance"]
	}
	return results, err
}

// MonteCarloStats counts the trials that reached the goal.
func MonteCarloStats(results []MonteCarloResult) (reached int, missed int) {
	for _, r := range results {
		if r.ReachedGoal {
			reached++
		} else {
			missed++
		}
	}
	return
}

package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/models"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/planner"
	"github.com/san-kum/hitchplan/internal/solver"
)

const (
	DefaultHorizon       = 4.0
	DefaultDt            = 0.1
	DefaultLoopDuration  = 8.0
	DefaultGoalTolerance = 0.1
	DefaultServerAddr    = "127.0.0.1:8333"
)

type Config struct {
	Mode         string       `yaml:"mode"`
	Horizon      float64      `yaml:"horizon"`
	Dt           float64      `yaml:"dt"`
	Model        ModelConfig  `yaml:"model"`
	Weights      []float64    `yaml:"weights,omitempty"`
	Penalties    []float64    `yaml:"penalties,omitempty"`
	PathWindow   int          `yaml:"path_window"`
	Solver       SolverConfig `yaml:"solver"`
	InitialState []float64    `yaml:"initial_state"`
	Reference    [][]float64  `yaml:"reference"`
	Loop         LoopConfig   `yaml:"loop"`
}

type ModelConfig struct {
	Name        string  `yaml:"name"`
	Integrator  string  `yaml:"integrator"`
	LengthFront float64 `yaml:"length_front,omitempty"`
	LengthBack  float64 `yaml:"length_back,omitempty"`
	VelocityMax float64 `yaml:"velocity_max"`
}

type SolverConfig struct {
	Backend             string        `yaml:"backend"`
	Tolerance           float64       `yaml:"tolerance"`
	InitialTolerance    float64       `yaml:"initial_tolerance"`
	DeltaTolerance      float64       `yaml:"delta_tolerance"`
	MaxOuterIterations  int           `yaml:"max_outer_iterations"`
	MaxInnerIterations  int           `yaml:"max_inner_iterations"`
	InitialPenalty      float64       `yaml:"initial_penalty"`
	PenaltyUpdateFactor float64       `yaml:"penalty_update_factor"`
	MaxDuration         time.Duration `yaml:"max_duration"`
	WarmStart           bool          `yaml:"warm_start"`
	ServerAddr          string        `yaml:"server_addr,omitempty"`
	ServerCommand       []string      `yaml:"server_command,omitempty"`
}

// LoopConfig drives the closed-loop tracking run.
type LoopConfig struct {
	Duration      float64 `yaml:"duration"`
	ReplanEvery   int     `yaml:"replan_every"`
	GoalTolerance float64 `yaml:"goal_tolerance"`
}

func DefaultConfig() *Config {
	sc := solver.DefaultConfig()
	return &Config{
		Mode:    string(planner.KindPointToPoint),
		Horizon: DefaultHorizon,
		Dt:      DefaultDt,
		Model: ModelConfig{
			Name:        "unicycle",
			Integrator:  "euler",
			VelocityMax: 1.0,
		},
		Solver: SolverConfig{
			Backend:             "alm",
			Tolerance:           sc.Tolerance,
			InitialTolerance:    sc.InitialTolerance,
			DeltaTolerance:      sc.DeltaTolerance,
			MaxOuterIterations:  sc.MaxOuterIterations,
			MaxInnerIterations:  sc.MaxInnerIterations,
			InitialPenalty:      sc.InitialPenalty,
			PenaltyUpdateFactor: sc.PenaltyUpdateFactor,
			MaxDuration:         sc.MaxDuration,
			WarmStart:           sc.WarmStart,
			ServerAddr:          DefaultServerAddr,
		},
		InitialState: []float64{0, 0, 0},
		Reference:    [][]float64{{3, 0, 0}},
		Loop: LoopConfig{
			Duration:      DefaultLoopDuration,
			ReplanEvery:   1,
			GoalTolerance: DefaultGoalTolerance,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate collects every field problem rather than stopping at the first.
func (c *Config) Validate() error {
	var err error
	known := false
	for _, k := range planner.Kinds() {
		if string(k) == c.Mode {
			known = true
		}
	}
	if !known {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "mode", "unknown mode %q", c.Mode))
	}
	if _, herr := c.HorizonSpec(); herr != nil {
		err = multierr.Append(err, herr)
	}
	if c.Model.VelocityMax < 0 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "model.velocity_max", "must not be negative, got %v", c.Model.VelocityMax))
	}
	if c.PathWindow < 0 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "path_window", "must not be negative, got %d", c.PathWindow))
	}
	if len(c.Reference) == 0 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrMalformedReference, "reference", "no waypoints"))
	}
	if c.Loop.ReplanEvery < 1 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "loop.replan_every", "must be at least 1, got %d", c.Loop.ReplanEvery))
	}
	if c.Loop.Duration <= 0 {
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "loop.duration", "must be positive, got %v", c.Loop.Duration))
	}
	switch c.Solver.Backend {
	case "alm", "nlopt", "tcp":
	default:
		err = multierr.Append(err, dynamo.NewConfigError(dynamo.ErrConfiguration, "solver.backend", "unknown backend %q", c.Solver.Backend))
	}
	if serr := c.SolverOptions().Validate(); serr != nil {
		err = multierr.Append(err, serr)
	}
	return err
}

func (c *Config) Kind() planner.Kind {
	return planner.Kind(c.Mode)
}

func (c *Config) HorizonSpec() (ocp.Horizon, error) {
	return ocp.NewHorizon(c.Horizon, c.Dt)
}

func (c *Config) ModelParams() models.Params {
	return models.Params{
		Name:        c.Model.Name,
		Integrator:  c.Model.Integrator,
		LengthFront: c.Model.LengthFront,
		LengthBack:  c.Model.LengthBack,
		VelocityMax: c.Model.VelocityMax,
	}
}

func (c *Config) PlannerOptions() planner.Options {
	return planner.Options{
		PathWindow: c.PathWindow,
		Penalties:  c.Penalties,
	}
}

// SolverOptions returns the solver settings as the immutable value the
// solvers take.
func (c *Config) SolverOptions() solver.Config {
	return solver.Config{
		Tolerance:           c.Solver.Tolerance,
		InitialTolerance:    c.Solver.InitialTolerance,
		DeltaTolerance:      c.Solver.DeltaTolerance,
		MaxOuterIterations:  c.Solver.MaxOuterIterations,
		MaxInnerIterations:  c.Solver.MaxInnerIterations,
		InitialPenalty:      c.Solver.InitialPenalty,
		PenaltyUpdateFactor: c.Solver.PenaltyUpdateFactor,
		MaxDuration:         c.Solver.MaxDuration,
		WarmStart:           c.Solver.WarmStart,
	}
}

func (c *Config) InitialStateVector() dynamo.State {
	return dynamo.State(c.InitialState).Clone()
}

func (c *Config) ReferenceStates() []dynamo.State {
	ref := make([]dynamo.State, len(c.Reference))
	for i, w := range c.Reference {
		ref[i] = dynamo.State(w).Clone()
	}
	return ref
}

// Clone returns a deep copy, so presets can be customized safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Weights = append([]float64(nil), c.Weights...)
	out.Penalties = append([]float64(nil), c.Penalties...)
	out.InitialState = append([]float64(nil), c.InitialState...)
	out.Solver.ServerCommand = append([]string(nil), c.Solver.ServerCommand...)
	out.Reference = make([][]float64, len(c.Reference))
	for i, w := range c.Reference {
		out.Reference[i] = append([]float64(nil), w...)
	}
	return &out
}

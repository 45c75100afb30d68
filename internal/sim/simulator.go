// Package sim runs a controller against a kinematic model in closed loop.
package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
)

type Config struct {
	Dt            float64
	Duration      float64
	ValidateState bool
	// Goal, when set, ends the run once the planar distance to it drops
	// to GoalTolerance.
	Goal          dynamo.State
	GoalTolerance float64
}

type Result struct {
	States      []dynamo.State
	Controls    []dynamo.Control
	Times       []float64
	Metrics     map[string]float64
	Errors      []error
	StepsTaken  int
	ReachedGoal bool
}

// Final returns the last visited state.
func (r *Result) Final() dynamo.State {
	return r.States[len(r.States)-1]
}

// FinalObserver is implemented by metrics that also want the state the
// loop ended in.
type FinalObserver interface {
	ObserveFinal(x dynamo.State, t float64)
}

// StepError reports an invalid state produced at a step.
type StepError struct {
	Time    float64
	Step    int
	Message string
}

func (e StepError) Error() string {
	return fmt.Sprintf("sim: step %d (t=%.3f): %s", e.Step, e.Time, e.Message)
}

type Simulator struct {
	model      dynamo.Model
	controller dynamo.Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     logging.Logger
}

func New(model dynamo.Model, controller dynamo.Controller, logger logging.Logger) *Simulator {
	return &Simulator{
		model:      model,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		logger:     logging.OrNop(logger),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := s.validate(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Floor(cfg.Duration/cfg.Dt + 1e-9))
	result := &Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		if s.atGoal(x, cfg) {
			result.ReachedGoal = true
			break
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u, err := s.controller.Compute(ctx, x, t)
		if err != nil {
			return result, fmt.Errorf("sim: controller at step %d: %w", i, err)
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		next := s.model.Step(x, u, cfg.Dt)
		if cfg.ValidateState && !next.IsValid() {
			result.Errors = append(result.Errors, StepError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		x = next
		t += cfg.Dt
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u.Clone())
		result.Times = append(result.Times, t)
	}
	if !result.ReachedGoal && s.atGoal(x, cfg) {
		result.ReachedGoal = true
	}

	for _, m := range s.metrics {
		if f, ok := m.(FinalObserver); ok {
			f.ObserveFinal(x, t)
		}
		result.Metrics[m.Name()] = m.Value()
	}

	s.logger.Debugw("closed loop finished",
		"steps", result.StepsTaken, "reached_goal", result.ReachedGoal, "errors", len(result.Errors))
	return result, nil
}

func (s *Simulator) atGoal(x dynamo.State, cfg Config) bool {
	if len(cfg.Goal) < 2 || cfg.GoalTolerance <= 0 {
		return false
	}
	return math.Hypot(x[0]-cfg.Goal[0], x[1]-cfg.Goal[1]) <= cfg.GoalTolerance
}

func (s *Simulator) validate(x0 dynamo.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return dynamo.NewConfigError(dynamo.ErrConfiguration, "dt", "must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return dynamo.NewConfigError(dynamo.ErrConfiguration, "duration", "must be positive, got %f", cfg.Duration)
	}
	if len(x0) != s.model.StateDim() {
		return dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "initial_state",
			"got %d values, model state has %d", len(x0), s.model.StateDim())
	}
	return nil
}

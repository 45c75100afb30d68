package storage

import (
	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/optimizer"
	"github.com/san-kum/hitchplan/internal/sim"
)

const (
	KindPlan  = "plan"
	KindTrack = "track"
)

// Run is what gets persisted for a single solve or a closed-loop run.
type Run struct {
	Kind     string
	Config   *config.Config
	Status   string
	Cost     float64
	Times    []float64
	States   [][]float64
	Controls [][]float64
	Metrics  map[string]float64
}

// FromTrajectory records an accepted plan. Times are the predicted step
// times.
func FromTrajectory(cfg *config.Config, traj *optimizer.Trajectory) *Run {
	run := &Run{
		Kind:     KindPlan,
		Config:   cfg,
		Status:   traj.Status.String(),
		Cost:     traj.Cost,
		Times:    make([]float64, len(traj.States)),
		States:   make([][]float64, len(traj.States)),
		Controls: make([][]float64, traj.Controls.Steps()),
		Metrics: map[string]float64{
			"outer_iterations": float64(traj.OuterIterations),
			"inner_iterations": float64(traj.InnerIterations),
			"solve_time_ms":    float64(traj.SolveTime.Microseconds()) / 1000,
		},
	}
	for i, x := range traj.States {
		run.Times[i] = float64(i) * cfg.Dt
		run.States[i] = x.Clone()
	}
	for t := range run.Controls {
		run.Controls[t] = traj.Controls.At(t)
	}
	return run
}

// FromResult records a closed-loop run.
func FromResult(cfg *config.Config, res *sim.Result) *Run {
	status := "duration_elapsed"
	if res.ReachedGoal {
		status = "reached_goal"
	} else if len(res.Errors) > 0 {
		status = "invalid_state"
	}
	run := &Run{
		Kind:     KindTrack,
		Config:   cfg,
		Status:   status,
		Times:    append([]float64(nil), res.Times...),
		States:   make([][]float64, len(res.States)),
		Controls: make([][]float64, len(res.Controls)),
		Metrics:  res.Metrics,
	}
	for i, x := range res.States {
		run.States[i] = x.Clone()
	}
	for i, u := range res.Controls {
		run.Controls[i] = u.Clone()
	}
	return run
}

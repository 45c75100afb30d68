package control

import (
	"context"
	"errors"
	"time"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/optimizer"
)

// Planner is the part of the trajectory optimizer the controller needs.
type Planner interface {
	GenerateTrajectory(ctx context.Context, initial dynamo.State, reference []dynamo.State, warmStart *dynamo.Sequence) (*optimizer.Trajectory, error)
}

// Stats counts what the controller did over a run.
type Stats struct {
	Replans   int
	Failures  int
	Holds     int
	SafeStops int
}

// MPC re-plans from the measured state every ReplanEvery steps and plays
// the plan in between. When a re-plan fails for any reason other than a
// configuration error it keeps playing the previous plan, shifted by the
// steps already applied, and stops the vehicle once that plan is used up.
type MPC struct {
	planner     Planner
	reference   []dynamo.State
	nu          int
	replanEvery int
	timeout     time.Duration
	logger      logging.Logger

	plan    dynamo.Sequence
	cursor  int
	hasPlan bool
	stats   Stats
}

type MPCOption func(*MPC)

func WithReplanEvery(steps int) MPCOption {
	return func(c *MPC) {
		if steps > 0 {
			c.replanEvery = steps
		}
	}
}

// WithPlanTimeout bounds every re-plan. Zero leaves the caller's context
// alone.
func WithPlanTimeout(d time.Duration) MPCOption {
	return func(c *MPC) { c.timeout = d }
}

func WithMPCLogger(l logging.Logger) MPCOption {
	return func(c *MPC) { c.logger = logging.OrNop(l) }
}

func NewMPC(planner Planner, reference []dynamo.State, nu int, opts ...MPCOption) *MPC {
	c := &MPC{
		planner:     planner,
		reference:   reference,
		nu:          nu,
		replanEvery: 1,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MPC) Stats() Stats { return c.stats }

// SetReference replaces the reference for the next re-plan.
func (c *MPC) SetReference(reference []dynamo.State) {
	c.reference = reference
}

func (c *MPC) Compute(ctx context.Context, x dynamo.State, t float64) (dynamo.Control, error) {
	if c.hasPlan && c.cursor < c.replanEvery && c.cursor < c.plan.Steps() {
		return c.advance(), nil
	}

	planCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.stats.Replans++
	traj, err := c.planner.GenerateTrajectory(planCtx, x, c.reference, nil)
	if err == nil {
		c.plan = traj.Controls
		c.cursor = 0
		c.hasPlan = true
		return c.advance(), nil
	}
	if errors.Is(err, dynamo.ErrConfiguration) || errors.Is(err, context.Canceled) {
		return nil, err
	}

	c.stats.Failures++
	if c.hasPlan && c.cursor < c.plan.Steps() {
		c.stats.Holds++
		c.logger.Warnw("re-plan failed, holding previous plan", "t", t, "step", c.cursor, "error", err)
		return c.advance(), nil
	}
	c.stats.SafeStops++
	c.logger.Warnw("re-plan failed with no plan left, stopping", "t", t, "error", err)
	return make(dynamo.Control, c.nu), nil
}

func (c *MPC) advance() dynamo.Control {
	u := c.plan.At(c.cursor)
	c.cursor++
	return u
}

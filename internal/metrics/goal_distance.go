package metrics

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// GoalDistance is the planar distance between the last state seen and
// the goal.
type GoalDistance struct {
	goal dynamo.State
	last float64
	seen bool
}

func NewGoalDistance(goal dynamo.State) *GoalDistance {
	return &GoalDistance{goal: goal.Clone()}
}

func (g *GoalDistance) Name() string {
	return "goal_distance"
}

func (g *GoalDistance) Observe(x dynamo.State, u dynamo.Control, t float64) {
	g.ObserveFinal(x, t)
}

// ObserveFinal records the state the loop ended in.
func (g *GoalDistance) ObserveFinal(x dynamo.State, t float64) {
	g.last = math.Hypot(x[0]-g.goal[0], x[1]-g.goal[1])
	g.seen = true
}

func (g *GoalDistance) Value() float64 {
	if !g.seen {
		return math.Inf(1)
	}
	return g.last
}

func (g *GoalDistance) Reset() {
	g.last = 0
	g.seen = false
}

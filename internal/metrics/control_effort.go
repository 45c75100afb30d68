package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// ControlEffort is the mean of ‖u‖² over the applied controls.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{}
}

func (c *ControlEffort) Name() string {
	return "control_effort"
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.sum += floats.Dot(u, u)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

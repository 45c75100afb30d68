package control

import (
	"context"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// OpenLoop replays a control sequence one step per call and stops once it
// runs out.
type OpenLoop struct {
	seq  dynamo.Sequence
	next int
}

func NewOpenLoop(seq dynamo.Sequence) *OpenLoop {
	return &OpenLoop{seq: seq.Clone()}
}

func (c *OpenLoop) Compute(ctx context.Context, x dynamo.State, t float64) (dynamo.Control, error) {
	if c.next >= c.seq.Steps() {
		return make(dynamo.Control, c.seq.Nu), nil
	}
	u := c.seq.At(c.next)
	c.next++
	return u, nil
}

// Rewind restarts the replay from the first control.
func (c *OpenLoop) Rewind() {
	c.next = 0
}

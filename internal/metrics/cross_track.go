package metrics

import (
	"github.com/san-kum/hitchplan/internal/cost"
	"github.com/san-kum/hitchplan/internal/dynamo"
)

// CrossTrack is the mean distance from the visited positions to the
// reference path.
type CrossTrack struct {
	path    []dynamo.State
	sum     float64
	samples int
}

func NewCrossTrack(path []dynamo.State) *CrossTrack {
	return &CrossTrack{path: path}
}

func (c *CrossTrack) Name() string {
	return "cross_track"
}

func (c *CrossTrack) Observe(x dynamo.State, u dynamo.Control, t float64) {
	d, seg := cost.NearestSegment(x.Position(), c.path, cost.DefaultEpsilon)
	if seg < 0 {
		return
	}
	c.sum += d
	c.samples++
}

func (c *CrossTrack) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *CrossTrack) Reset() {
	c.sum = 0
	c.samples = 0
}

package cost

import (
	"fmt"
	"math"
)

// Weights are the positional cost weights
// [q_xy, q_theta, r_u, qN_xy, qN_theta] with an optional trailing q_cte.
type Weights struct {
	PositionXY      float64
	Heading         float64
	Effort          float64
	TerminalXY      float64
	TerminalHeading float64
	CrossTrack      float64
}

// ParseWeights decodes a positional weight vector. withCrossTrack demands
// the sixth entry.
func ParseWeights(values []float64, withCrossTrack bool) (Weights, error) {
	want := 5
	if withCrossTrack {
		want = 6
	}
	if len(values) != want {
		return Weights{}, fmt.Errorf("weights: expected %d values, got %d", want, len(values))
	}
	for i, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, fmt.Errorf("weights: entry %d must be finite and non-negative, got %v", i, v)
		}
	}
	w := Weights{
		PositionXY:      values[0],
		Heading:         values[1],
		Effort:          values[2],
		TerminalXY:      values[3],
		TerminalHeading: values[4],
	}
	if withCrossTrack {
		w.CrossTrack = values[5]
	}
	return w, nil
}

// Values encodes the weights back into positional form.
func (w Weights) Values(withCrossTrack bool) []float64 {
	v := []float64{w.PositionXY, w.Heading, w.Effort, w.TerminalXY, w.TerminalHeading}
	if withCrossTrack {
		v = append(v, w.CrossTrack)
	}
	return v
}

package metrics

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// HitchSafety is the fraction of samples whose articulation angle stays
// within the limit. States without an articulation angle count as safe.
type HitchSafety struct {
	limit      float64
	violations int
	samples    int
}

func NewHitchSafety(limit float64) *HitchSafety {
	return &HitchSafety{limit: limit}
}

func (h *HitchSafety) Name() string {
	return "hitch_safety"
}

func (h *HitchSafety) Observe(x dynamo.State, u dynamo.Control, t float64) {
	h.samples++
	if len(x) > 3 && math.Abs(x[3]) > h.limit {
		h.violations++
	}
}

func (h *HitchSafety) Value() float64 {
	if h.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(h.violations)/float64(h.samples)
}

func (h *HitchSafety) Reset() {
	h.violations = 0
	h.samples = 0
}

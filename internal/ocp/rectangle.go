package ocp

import (
	"fmt"
	"math"
)

// Rectangle is a box set {x : Lower[i] ≤ x[i] ≤ Upper[i]}. Infinite
// bounds are allowed.
type Rectangle struct {
	Lower []float64
	Upper []float64
}

func NewRectangle(lower, upper []float64) (Rectangle, error) {
	if len(lower) != len(upper) {
		return Rectangle{}, fmt.Errorf("rectangle: %d lower bounds but %d upper bounds", len(lower), len(upper))
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return Rectangle{}, fmt.Errorf("rectangle: lower[%d]=%v exceeds upper[%d]=%v", i, lower[i], i, upper[i])
		}
	}
	r := Rectangle{Lower: make([]float64, len(lower)), Upper: make([]float64, len(upper))}
	copy(r.Lower, lower)
	copy(r.Upper, upper)
	return r, nil
}

// Replicate tiles the per-step bounds lower/upper once per horizon step.
func Replicate(lower, upper []float64, steps int) (Rectangle, error) {
	if steps < 1 {
		return Rectangle{}, fmt.Errorf("rectangle: cannot replicate bounds over %d steps", steps)
	}
	lo := make([]float64, 0, len(lower)*steps)
	hi := make([]float64, 0, len(upper)*steps)
	for t := 0; t < steps; t++ {
		lo = append(lo, lower...)
		hi = append(hi, upper...)
	}
	return NewRectangle(lo, hi)
}

// Concat stacks rectangles in order.
func Concat(rs ...Rectangle) Rectangle {
	var out Rectangle
	for _, r := range rs {
		out.Lower = append(out.Lower, r.Lower...)
		out.Upper = append(out.Upper, r.Upper...)
	}
	return out
}

func (r Rectangle) Dim() int {
	return len(r.Lower)
}

// Entries counts the bound values, lower and upper together.
func (r Rectangle) Entries() int {
	return len(r.Lower) + len(r.Upper)
}

func (r Rectangle) IsEmpty() bool {
	return len(r.Lower) == 0
}

// Project writes the closest point of the box to x into dst.
func (r Rectangle) Project(dst, x []float64) {
	for i := range x {
		dst[i] = math.Min(math.Max(x[i], r.Lower[i]), r.Upper[i])
	}
}

// Violation is the infinity-norm distance from x to the box.
func (r Rectangle) Violation(x []float64) float64 {
	worst := 0.0
	for i := range x {
		worst = math.Max(worst, math.Max(r.Lower[i]-x[i], x[i]-r.Upper[i]))
	}
	return worst
}

// SquaredDistance is ‖x − Π(x)‖².
func (r Rectangle) SquaredDistance(x []float64) float64 {
	sum := 0.0
	for i := range x {
		var d float64
		switch {
		case x[i] < r.Lower[i]:
			d = r.Lower[i] - x[i]
		case x[i] > r.Upper[i]:
			d = x[i] - r.Upper[i]
		}
		sum += d * d
	}
	return sum
}

func (r Rectangle) Contains(x []float64, tol float64) bool {
	return r.Violation(x) <= tol
}

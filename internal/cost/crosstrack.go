package cost

import (
	"math"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/ocp"
)

// DefaultEpsilon guards the projection against zero-length segments.
const DefaultEpsilon = 1e-16

// Projection is the closest point of a finite segment to a query point.
type Projection struct {
	Point    [2]float64
	T        float64
	Distance float64
}

// ProjectOntoSegment clamps the orthogonal projection of p onto segment
// (a, b). Only the first two coordinates of each argument are used.
func ProjectOntoSegment(p, a, b []float64, eps float64) Projection {
	ex, ey := b[0]-a[0], b[1]-a[1]
	px, py := p[0]-a[0], p[1]-a[1]

	tHat := (px*ex + py*ey) / (ex*ex + ey*ey + eps)
	tStar := math.Max(0, math.Min(1, tHat))

	proj := [2]float64{a[0] + tStar*ex, a[1] + tStar*ey}
	return Projection{
		Point:    proj,
		T:        tStar,
		Distance: math.Hypot(p[0]-proj[0], p[1]-proj[1]),
	}
}

// NearestSegment returns the smallest segment distance from p to the
// polyline and the index of the segment achieving it. Ties go to the
// lowest index. A polyline with fewer than two points returns index -1.
func NearestSegment(p []float64, path []dynamo.State, eps float64) (float64, int) {
	return nearest(p, len(path), func(k int) []float64 { return path[k] }, 0, len(path)-2, eps)
}

func nearest(p []float64, points int, at func(int) []float64, lo, hi int, eps float64) (float64, int) {
	best, index := math.Inf(1), -1
	lo = max(lo, 0)
	hi = min(hi, points-2)
	for k := lo; k <= hi; k++ {
		d := ProjectOntoSegment(p, at(k), at(k+1), eps).Distance
		if d < best {
			best, index = d, k
		}
	}
	return best, index
}

// DegenerateSegments lists segments shorter than tol.
func DegenerateSegments(path []dynamo.State, tol float64) []int {
	var out []int
	for k := 0; k+1 < len(path); k++ {
		if math.Hypot(path[k+1][0]-path[k][0], path[k+1][1]-path[k][1]) <= tol {
			out = append(out, k)
		}
	}
	return out
}

// CrossTrack is (min segment distance)^Exponent over the reference path.
// A positive Window restricts the search to segments within Window of
// the stage reference index min(t, K−1).
type CrossTrack struct {
	Exponent float64
	Epsilon  float64
	Window   int
}

func NewCrossTrack(w Weights, window int) CrossTrack {
	return CrossTrack{Exponent: w.CrossTrack, Epsilon: DefaultEpsilon, Window: window}
}

// Distance is the cross-track error of position x at step t.
func (c CrossTrack) Distance(t int, x dynamo.State, p ocp.Params) float64 {
	k := p.Waypoints()
	lo, hi := 0, k-2
	if c.Window > 0 {
		ref := min(t, k-1)
		lo, hi = ref-c.Window, ref+c.Window-1
	}
	d, _ := nearest(x, k, func(i int) []float64 { return p.Waypoint(i) }, lo, hi, c.Epsilon)
	return d
}

func (c CrossTrack) Stage(t int, x dynamo.State, u dynamo.Control, p ocp.Params) float64 {
	d := c.Distance(t, x, p)
	if math.IsInf(d, 1) {
		return 0
	}
	if c.Exponent == 2 {
		return d * d
	}
	return math.Pow(d, c.Exponent)
}

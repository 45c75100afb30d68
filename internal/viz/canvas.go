package viz

import (
	"math"
	"strings"
)

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a braille grid of Width x Height cells, so 2*Width by
// 4*Height dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
	return c
}

// Set lights the dot at (x, y) in dot coordinates, y growing downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// Point is a planar position in world units.
type Point struct{ X, Y float64 }

// PathPlot draws every path as a polyline into a w x h cell canvas, scaled
// to the common bounding box with equal axes.
func PathPlot(paths [][]Point, w, h int) *Canvas {
	c := NewCanvas(w, h)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, path := range paths {
		for _, p := range path {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 0) {
		return c
	}

	dotsX, dotsY := float64(2*w-1), float64(4*h-1)
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	scale := math.Min(dotsX, dotsY) / span

	toDot := func(p Point) (int, int) {
		x := int(math.Round((p.X - minX) * scale))
		y := int(math.Round(dotsY - (p.Y-minY)*scale))
		return x, y
	}
	for _, path := range paths {
		for i := range path {
			x1, y1 := toDot(path[i])
			if i == 0 {
				c.Set(x1, y1)
				continue
			}
			x0, y0 := toDot(path[i-1])
			c.DrawLine(x0, y0, x1, y1)
		}
	}
	return c
}

// Positions extracts (x, y) from state rows, skipping rows with fewer
// than two columns.
func Positions(states [][]float64) []Point {
	pts := make([]Point, 0, len(states))
	for _, s := range states {
		if len(s) < 2 {
			continue
		}
		pts = append(pts, Point{X: s[0], Y: s[1]})
	}
	return pts
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

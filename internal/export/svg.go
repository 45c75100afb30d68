// Package export renders stored runs to files other tools can open.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/hitchplan/internal/viz"
)

// Layer is one polyline of a path drawing.
type Layer struct {
	Points []viz.Point
	Stroke string
	Dashed bool
}

// PathSVG draws the layers with equal axes and a 10% margin. Layers with
// fewer than two points are left out.
func PathSVG(layers []Layer, width, height int) string {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, l := range layers {
		for _, p := range l.Points {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 0) {
		return ""
	}

	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	minX -= span * 0.1
	minY -= span * 0.1
	span *= 1.2
	scale := math.Min(float64(width), float64(height)) / span

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for _, l := range layers {
		if len(l.Points) < 2 {
			continue
		}
		dash := ""
		if l.Dashed {
			dash = ` stroke-dasharray="6,4"`
		}
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5"%s d="M`, l.Stroke, dash))
		for i, p := range l.Points {
			x := (p.X - minX) * scale
			y := float64(height) - (p.Y-minY)*scale
			if i == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")
	}

	sb.WriteString("</svg>")
	return sb.String()
}

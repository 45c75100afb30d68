package export

import (
	"strings"
	"testing"

	"github.com/san-kum/hitchplan/internal/viz"
)

func TestPathSVG(t *testing.T) {
	svg := PathSVG([]Layer{
		{Points: []viz.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 1}}, Stroke: "#888888", Dashed: true},
		{Points: []viz.Point{{X: 0, Y: 0}, {X: 2, Y: 1}}, Stroke: "#00ff88"},
		{Points: []viz.Point{{X: 5, Y: 5}}, Stroke: "#ff0000"},
	}, 200, 100)

	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("not an svg document:\n%s", svg)
	}
	if got := strings.Count(svg, "<path"); got != 2 {
		t.Errorf("expected 2 paths, got %d", got)
	}
	if !strings.Contains(svg, "stroke-dasharray") {
		t.Error("expected the dashed reference layer")
	}
	if strings.Contains(svg, "#ff0000") {
		t.Error("single-point layer should be skipped")
	}
}

func TestPathSVGEmpty(t *testing.T) {
	if svg := PathSVG(nil, 100, 100); svg != "" {
		t.Errorf("expected empty output, got %q", svg)
	}
}

package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
)

// Series plots one column of rows against the sample index.
func Series(rows [][]float64, col int, caption string) string {
	data := make([]float64, len(rows))
	for i, r := range rows {
		if col < len(r) {
			data[i] = r[col]
		}
	}
	if len(data) == 0 {
		return fmt.Sprintf("%s: no samples", caption)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

// ControlSeries plots every control channel of a run in one chart.
func ControlSeries(controls [][]float64, caption string) string {
	if len(controls) == 0 {
		return fmt.Sprintf("%s: no samples", caption)
	}
	channels := make([][]float64, len(controls[0]))
	for j := range channels {
		channels[j] = make([]float64, len(controls))
		for i, u := range controls {
			if j < len(u) {
				channels[j][i] = u[j]
			}
		}
	}
	return asciigraph.PlotMany(channels,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
		asciigraph.Caption(caption),
	)
}

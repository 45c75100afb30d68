// Package viz renders planning results in the terminal: braille path
// plots of the planar trajectory, asciigraph time series of states and
// controls, and lipgloss styles for status lines.
package viz

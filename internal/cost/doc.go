// Package cost provides the stage, terminal and cross-track cost terms
// summed by the horizon unroll.
//
// Positions are the (x, y) part of a pose; headings are index 2. Every
// term is smooth in state and control except where the cross-track
// minimum switches segments.
package cost

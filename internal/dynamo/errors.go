package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for planning operations.
var (
	// ErrConfiguration indicates a request rejected before problem assembly.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrInvalidHorizon indicates a horizon with no steps.
	ErrInvalidHorizon = errors.New("dynamo: horizon must have at least one step")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and model")

	// ErrMalformedReference indicates an empty or undersized reference.
	ErrMalformedReference = errors.New("dynamo: malformed reference")

	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrSolveFailed indicates the solver returned without an accepted solution.
	ErrSolveFailed = errors.New("dynamo: solver did not converge")

	// ErrTransport indicates the out-of-process solver could not be reached.
	ErrTransport = errors.New("dynamo: solver transport failure")
)

// ConfigError reports a request that failed validation.
type ConfigError struct {
	Field   string
	Reason  string
	Wrapped error
}

func NewConfigError(wrapped error, field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...), Wrapped: wrapped}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Wrapped, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfiguration, e.Wrapped}
}

// SolveFailure carries the solver's last iterate for diagnostics.
type SolveFailure struct {
	Status        string
	LastIterate   []float64
	Iterations    int
	Cost          float64
	Infeasibility float64
}

func (e *SolveFailure) Error() string {
	return fmt.Sprintf("%v: status %s after %d iterations (cost=%.4g, infeasibility=%.3g)",
		ErrSolveFailed, e.Status, e.Iterations, e.Cost, e.Infeasibility)
}

func (e *SolveFailure) Unwrap() error {
	return ErrSolveFailed
}

// TransportFailure wraps an error talking to a remote solver.
type TransportFailure struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", ErrTransport, e.Op, e.Addr, e.Err)
}

func (e *TransportFailure) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// DegenerateGeometryWarning reports reference path segments of zero
// length. It is never returned as an error; planning proceeds.
type DegenerateGeometryWarning struct {
	Segments []int
}

func (w *DegenerateGeometryWarning) Error() string {
	return fmt.Sprintf("dynamo: degenerate path segments %v", w.Segments)
}

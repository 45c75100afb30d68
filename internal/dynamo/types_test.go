package dynamo

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"zeros", State{0.0, 0.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, 4}, 5.0},
		{State{1, 0}, 1.0},
		{State{0, 0}, 0.0},
		{State{}, 0.0},
		{State{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.state.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	if diff := cmp.Diff(State{5, 7, 9}, a.Add(b)); diff != "" {
		t.Errorf("Add mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(State{3, 3, 3}, b.Sub(a)); diff != "" {
		t.Errorf("Sub mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(State{2, 4, 6}, a.Scale(2)); diff != "" {
		t.Errorf("Scale mismatch (-want +got):\n%s", diff)
	}
	if a[0] != 1 {
		t.Error("arithmetic mutated the receiver")
	}
}

func TestSequence_Reshape(t *testing.T) {
	seq, err := SequenceFrom(2, []float64{1, 10, 2, 20, 3, 30})
	if err != nil {
		t.Fatalf("SequenceFrom failed: %v", err)
	}

	nu, n := seq.Shape()
	if nu != 2 || n != 3 {
		t.Fatalf("Shape() = (%d, %d), want (2, 3)", nu, n)
	}

	want := [][]float64{{1, 2, 3}, {10, 20, 30}}
	if diff := cmp.Diff(want, seq.Matrix()); diff != "" {
		t.Errorf("Matrix mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(Control{2, 20}, seq.At(1)); diff != "" {
		t.Errorf("At(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestSequence_Shift(t *testing.T) {
	seq, _ := SequenceFrom(2, []float64{1, 10, 2, 20, 3, 30})
	shifted := seq.Shift()

	want := []float64{2, 20, 3, 30, 3, 30}
	if diff := cmp.Diff(want, shifted.Data); diff != "" {
		t.Errorf("Shift mismatch (-want +got):\n%s", diff)
	}
	if seq.Data[0] != 1 {
		t.Error("Shift mutated the original sequence")
	}
}

func TestSequenceFrom_BadLength(t *testing.T) {
	_, err := SequenceFrom(2, []float64{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cfgErr := NewConfigError(ErrMalformedReference, "reference", "need %d waypoints, got %d", 2, 1)
	if !errors.Is(cfgErr, ErrConfiguration) || !errors.Is(cfgErr, ErrMalformedReference) {
		t.Errorf("ConfigError should match both sentinels: %v", cfgErr)
	}

	fail := &SolveFailure{Status: "NotConvergedIterations", LastIterate: []float64{1}}
	if !errors.Is(fail, ErrSolveFailed) || errors.Is(fail, ErrTransport) {
		t.Errorf("SolveFailure unwrap wrong: %v", fail)
	}

	tf := &TransportFailure{Op: "dial", Addr: "127.0.0.1:1", Err: errors.New("refused")}
	if !errors.Is(tf, ErrTransport) || errors.Is(tf, ErrSolveFailed) {
		t.Errorf("TransportFailure unwrap wrong: %v", tf)
	}
}

package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	if m.Value() != 0 {
		t.Errorf("empty effort = %v", m.Value())
	}
	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{1, 0}, 0)
	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{1, 2}, 0.1)
	if got := m.Value(); math.Abs(got-3) > 1e-12 {
		t.Errorf("effort = %v, want 3", got)
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("reset did not clear effort")
	}
}

func TestGoalDistance(t *testing.T) {
	m := NewGoalDistance(dynamo.State{3, 4, 0})
	if !math.IsInf(m.Value(), 1) {
		t.Errorf("unobserved distance = %v, want +Inf", m.Value())
	}
	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{0, 0}, 0)
	if m.Value() != 5 {
		t.Errorf("distance = %v, want 5", m.Value())
	}
	m.ObserveFinal(dynamo.State{3, 4, 1}, 1)
	if m.Value() != 0 {
		t.Errorf("final distance = %v, want 0", m.Value())
	}
}

func TestCrossTrack(t *testing.T) {
	path := []dynamo.State{{0, 0, 0}, {10, 0, 0}}
	m := NewCrossTrack(path)
	m.Observe(dynamo.State{5, 3, 0}, nil, 0)
	m.Observe(dynamo.State{5, 1, 0}, nil, 0.1)
	if got := m.Value(); math.Abs(got-2) > 1e-12 {
		t.Errorf("mean cross-track = %v, want 2", got)
	}

	single := NewCrossTrack(path[:1])
	single.Observe(dynamo.State{5, 3, 0}, nil, 0)
	if single.Value() != 0 {
		t.Errorf("single-point path should not count samples, got %v", single.Value())
	}
}

func TestHitchSafety(t *testing.T) {
	m := NewHitchSafety(0.5)
	m.Observe(dynamo.State{0, 0, 0, 0.1}, nil, 0)
	m.Observe(dynamo.State{0, 0, 0, -0.9}, nil, 0.1)
	m.Observe(dynamo.State{0, 0, 0}, nil, 0.2)
	m.Observe(dynamo.State{0, 0, 0, 0.4}, nil, 0.3)
	if got := m.Value(); got != 0.75 {
		t.Errorf("hitch safety = %v, want 0.75", got)
	}
}

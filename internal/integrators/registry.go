package integrators

import (
	"fmt"

	"github.com/san-kum/hitchplan/internal/dynamo"
)

// ByName returns a fresh integrator. An empty name selects Euler.
func ByName(name string) (dynamo.Integrator, error) {
	switch name {
	case "", "euler":
		return NewEuler(), nil
	case "rk4":
		return NewRK4(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

func List() []string {
	return []string{"euler", "rk4"}
}

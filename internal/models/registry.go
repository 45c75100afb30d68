package models

import (
	"fmt"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/integrators"
)

// Params holds the geometry and limits shared by the registered models.
type Params struct {
	Name        string
	Integrator  string
	LengthFront float64
	LengthBack  float64
	WheelBase   float64
	VelocityMax float64
}

// Build constructs a model by name. Zero geometry values keep the defaults.
func Build(p Params) (dynamo.Model, error) {
	integ, err := integrators.ByName(p.Integrator)
	if err != nil {
		return nil, err
	}

	switch p.Name {
	case "unicycle":
		m := NewUnicycle().WithIntegrator(integ)
		if p.VelocityMax > 0 {
			m.MaxVelocity = p.VelocityMax
		}
		return m, nil
	case "tractor_trailer":
		m := NewTractorTrailer().WithIntegrator(integ)
		if p.LengthFront > 0 {
			m.LengthFront = p.LengthFront
		}
		if p.LengthBack > 0 {
			m.LengthBack = p.LengthBack
		}
		if p.WheelBase > 0 {
			m.WheelBase = p.WheelBase
		}
		if p.VelocityMax > 0 {
			m.MaxVelocity = p.VelocityMax
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model: %s", p.Name)
	}
}

func List() []string {
	return []string{"unicycle", "tractor_trailer"}
}

package config

import (
	"sort"

	"github.com/san-kum/hitchplan/internal/planner"
)

func preset(mode planner.Kind, modify func(c *Config)) *Config {
	c := DefaultConfig()
	c.Mode = string(mode)
	modify(c)
	return c
}

var Presets = map[string]map[string]*Config{
	string(planner.KindPointToPoint): {
		"straight": preset(planner.KindPointToPoint, func(c *Config) {
			c.Reference = [][]float64{{3, 0, 0}}
		}),
		"sidestep": preset(planner.KindPointToPoint, func(c *Config) {
			c.Model.VelocityMax = 2
			c.Reference = [][]float64{{5, 0, 0}}
			c.InitialState = []float64{0, 1, 0}
		}),
		"turn": preset(planner.KindPointToPoint, func(c *Config) {
			c.Reference = [][]float64{{2, 2, 1.5707963267948966}}
		}),
	},
	string(planner.KindCoverage): {
		"line": preset(planner.KindCoverage, func(c *Config) {
			c.Reference = [][]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
		}),
		"lawnmower": preset(planner.KindCoverage, func(c *Config) {
			c.Horizon = 6
			c.Model.VelocityMax = 1.5
			c.PathWindow = 2
			c.Reference = [][]float64{
				{0, 0, 0}, {2, 0, 0}, {2, 1, 1.5707963267948966},
				{0, 1, 3.141592653589793}, {0, 2, 1.5707963267948966}, {2, 2, 0},
			}
			c.Loop.Duration = 12
		}),
	},
	string(planner.KindBackwardRecovery): {
		"reverse": preset(planner.KindBackwardRecovery, func(c *Config) {
			c.Model.Name = "tractor_trailer"
			c.InitialState = []float64{0, 0, 0, 0}
			c.Reference = [][]float64{{-2, 0, 0, 0}}
		}),
		"jackknife": preset(planner.KindBackwardRecovery, func(c *Config) {
			c.Model.Name = "tractor_trailer"
			c.InitialState = []float64{0, 0, 0, 0.5}
			c.Reference = [][]float64{{-2, 0.5, 0, 0}}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(mode, name string) *Config {
	modePresets, ok := Presets[mode]
	if !ok {
		return nil
	}
	cfg, ok := modePresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(mode string) []string {
	modePresets, ok := Presets[mode]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modePresets))
	for name := range modePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPresets names the preset a mode starts from when neither a
// preset nor a config file is given.
var DefaultPresets = map[string]string{
	string(planner.KindPointToPoint):     "straight",
	string(planner.KindCoverage):         "line",
	string(planner.KindBackwardRecovery): "reverse",
}

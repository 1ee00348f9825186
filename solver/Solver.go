// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON or YAML serialized into configuration files.
//
// In a configuration file, a Solver is described by its type and the
// configuration of that type:
//
//	{"Type": "Adam", "Config": {"StepSize": 0.0002, "Epsilon": 1e-8,
//	 "Beta1": 0.9, "Beta2": 0.999, "Batch": 1}}
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
	"gopkg.in/yaml.v3"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// configTypes maps each Type to the concrete Config that describes it
var configTypes = map[Type]reflect.Type{
	Adam:    reflect.TypeOf(AdamConfig{}),
	RMSProp: reflect.TypeOf(RMSPropConfig{}),
	Vanilla: reflect.TypeOf(VanillaConfig{}),
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// LearningRate returns the step size of the described Solver
	LearningRate() float64

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// Solver wraps Gorgonia Solvers so that they can be marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-" yaml:"-"`
	Type     Type   `yaml:"Type"`
	Config   Config `yaml:"Config"`
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Reset creates a fresh Gorgonia Solver from the configuration, which
// discards any state (e.g. moment estimates) accumulated by the
// previous Solver.
func (s *Solver) Reset() {
	s.Solver = s.Config.Create()
}

// LearningRate returns the step size of the Solver
func (s *Solver) LearningRate() float64 {
	return s.Config.LearningRate()
}

// String implements the fmt.Stringer interface
func (s *Solver) String() string {
	return fmt.Sprintf("{%v Solver: %+v}", s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	value, err := newConfigOf(raw.Type)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, value.Interface()); err != nil {
			return fmt.Errorf("unmarshalJSON: %v", err)
		}
	}

	s.set(raw.Type, value)
	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (s *Solver) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type   Type      `yaml:"Type"`
		Config yaml.Node `yaml:"Config"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("unmarshalYAML: %v", err)
	}

	value, err := newConfigOf(raw.Type)
	if err != nil {
		return fmt.Errorf("unmarshalYAML: %v", err)
	}
	if !raw.Config.IsZero() {
		if err := raw.Config.Decode(value.Interface()); err != nil {
			return fmt.Errorf("unmarshalYAML: %v", err)
		}
	}

	s.set(raw.Type, value)
	return nil
}

// set sets the configuration of the Solver from a pointer to a
// concrete Config
func (s *Solver) set(t Type, value reflect.Value) {
	s.Type = t
	s.Config = value.Elem().Interface().(Config)
	s.Solver = s.Config.Create()
}

// newConfigOf returns a pointer to a new zero Config of type t
func newConfigOf(t Type) (reflect.Value, error) {
	ty, ok := configTypes[t]
	if !ok {
		return reflect.Value{}, fmt.Errorf("no such solver type %q", t)
	}
	return reflect.New(ty), nil
}

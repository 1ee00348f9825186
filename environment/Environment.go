// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// Environment implements a simulated environment. Actions are given as
// vectors; environments with discrete actions take a single element
// vector holding the index of the action.
type Environment interface {
	// Reset resets the environment between episodes and returns the
	// first TimeStep of the new episode
	Reset() (ts.TimeStep, error)

	// Step takes a single environmental step, returning the next
	// TimeStep and whether the episode has ended
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	// CurrentTimeStep returns the most recent TimeStep
	CurrentTimeStep() ts.TimeStep

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec

	// Close releases any resources held by the environment
	Close() error
}

// Wrapper is an Environment that wraps and modifies another Environment
type Wrapper interface {
	Environment
	Unwrap() Environment
}

// NumActions returns the number of discrete actions available in an
// environment, or an error if the environment does not have discrete,
// one-dimensional actions enumerated from 0.
func NumActions(e Environment) (int, error) {
	spec := e.ActionSpec()
	if spec.Cardinality != Discrete {
		return 0, errNotDiscrete
	}
	if spec.LowerBound.Len() != 1 {
		return 0, errActionDim
	}
	if spec.LowerBound.AtVec(0) != 0.0 {
		return 0, errActionStart
	}
	return int(spec.UpperBound.AtVec(0)) + 1, nil
}

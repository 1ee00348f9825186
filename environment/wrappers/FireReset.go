package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// Actions pressed by FireReset
var (
	fire       = mat.NewVecDense(1, []float64{1})
	fireFollow = mat.NewVecDense(1, []float64{2})
)

// FireReset presses FIRE after each reset, for games that stay frozen
// until FIRE is pressed (e.g. Breakout).
type FireReset struct {
	environment.Environment
	numberer
}

// NewFireReset returns a new FireReset. The wrapped environment must
// have at least 3 actions, where action 1 is FIRE.
func NewFireReset(env environment.Environment) (*FireReset, ts.TimeStep,
	error) {
	actions, err := environment.NumActions(env)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFireReset: %v", err)
	}
	if actions < 3 {
		return nil, ts.TimeStep{}, fmt.Errorf("newFireReset: environment "+
			"needs at least 3 actions\n\twant(>=3)\n\thave(%v)", actions)
	}

	f := &FireReset{Environment: env}
	step, err := f.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFireReset: %v", err)
	}
	return f, step, nil
}

// Reset resets the environment and presses FIRE
func (f *FireReset) Reset() (ts.TimeStep, error) {
	step, err := f.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}

	for _, action := range []*mat.VecDense{fire, fireFollow} {
		var done bool
		step, done, err = f.Environment.Step(action)
		if err != nil {
			return ts.TimeStep{}, fmt.Errorf("reset: could not fire: %v", err)
		}
		if done {
			if step, err = f.Environment.Reset(); err != nil {
				return ts.TimeStep{}, err
			}
		}
	}

	return f.first(step), nil
}

// Step takes one environmental step
func (f *FireReset) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, done, err := f.Environment.Step(a)
	if err != nil {
		return step, done, err
	}
	return f.next(step), done, nil
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (f *FireReset) CurrentTimeStep() ts.TimeStep {
	return f.current
}

// Unwrap returns the wrapped environment
func (f *FireReset) Unwrap() environment.Environment {
	return f.Environment
}

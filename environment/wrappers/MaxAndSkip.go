package wrappers

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// MaxAndSkip repeats each action for a number of frames, summing the
// rewards. The returned observation is the pixel-wise maximum over the
// last two frames seen, which removes the flickering of sprites that
// are only drawn on every other frame.
type MaxAndSkip struct {
	environment.Environment
	numberer

	skip int
}

// NewMaxAndSkip returns a new MaxAndSkip which repeats each action
// skip times.
func NewMaxAndSkip(env environment.Environment, skip int) (*MaxAndSkip,
	ts.TimeStep, error) {
	if skip < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newMaxAndSkip: skip must "+
			"be positive\n\twant(>0)\n\thave(%v)", skip)
	}

	m := &MaxAndSkip{Environment: env, skip: skip}
	step, err := m.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newMaxAndSkip: %v", err)
	}
	return m, step, nil
}

// Reset resets the environment
func (m *MaxAndSkip) Reset() (ts.TimeStep, error) {
	step, err := m.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}
	return m.first(step), nil
}

// Step repeats action a for a number of frames, stopping early if the
// episode ends.
func (m *MaxAndSkip) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	var step ts.TimeStep
	var prev *mat.VecDense
	var done bool
	var err error
	reward := 0.0

	for i := 0; i < m.skip && !done; i++ {
		if i > 0 {
			prev = step.Observation
		}
		step, done, err = m.Environment.Step(a)
		if err != nil {
			return step, done, err
		}
		reward += step.Reward
	}

	step.Reward = reward
	if prev != nil {
		step.Observation = maxFrame(prev, step.Observation)
	}
	return m.next(step), done, nil
}

// maxFrame returns the element-wise maximum of two frames
func maxFrame(a, b *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(a.Len(), nil)
	for i := 0; i < a.Len(); i++ {
		out.SetVec(i, math.Max(a.AtVec(i), b.AtVec(i)))
	}
	return out
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (m *MaxAndSkip) CurrentTimeStep() ts.TimeStep {
	return m.current
}

// Unwrap returns the wrapped environment
func (m *MaxAndSkip) Unwrap() environment.Environment {
	return m.Environment
}

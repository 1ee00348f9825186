package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// NoopReset takes a random number of no-op actions (action 0) after
// each reset of the wrapped environment. This way, episodes start from
// a distribution of initial states instead of from a single state.
type NoopReset struct {
	environment.Environment
	numberer

	noopMax int
	rng     *rand.Rand
}

// NewNoopReset returns a new NoopReset which takes between 1 and
// noopMax (inclusive) no-ops on reset.
func NewNoopReset(env environment.Environment, noopMax int,
	seed uint64) (*NoopReset, ts.TimeStep, error) {
	if noopMax < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newNoopReset: noopMax must "+
			"be positive\n\twant(>0)\n\thave(%v)", noopMax)
	}

	n := &NoopReset{
		Environment: env,
		noopMax:     noopMax,
		rng:         rand.New(rand.NewSource(seed)),
	}

	step, err := n.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newNoopReset: %v", err)
	}
	return n, step, nil
}

// Reset resets the environment and takes a random number of no-ops
func (n *NoopReset) Reset() (ts.TimeStep, error) {
	step, err := n.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}

	noops := 1 + n.rng.Intn(n.noopMax)
	for i := 0; i < noops; i++ {
		var done bool
		step, done, err = n.Environment.Step(noop)
		if err != nil {
			return ts.TimeStep{}, fmt.Errorf("reset: could not take "+
				"no-op: %v", err)
		}

		if done {
			step, err = n.Environment.Reset()
			if err != nil {
				return ts.TimeStep{}, err
			}
		}
	}

	return n.first(step), nil
}

// Step takes one environmental step
func (n *NoopReset) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, done, err := n.Environment.Step(a)
	if err != nil {
		return step, done, err
	}
	return n.next(step), done, nil
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (n *NoopReset) CurrentTimeStep() ts.TimeStep {
	return n.current
}

// Unwrap returns the wrapped environment
func (n *NoopReset) Unwrap() environment.Environment {
	return n.Environment
}

package wrappers

import (
	"math"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// ClipReward replaces each reward with its sign: -1, 0, or +1.
type ClipReward struct {
	environment.Environment
}

// NewClipReward returns a new ClipReward
func NewClipReward(env environment.Environment) *ClipReward {
	return &ClipReward{env}
}

// Step takes one environmental step and clips the reward
func (c *ClipReward) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, done, err := c.Environment.Step(a)
	step.Reward = sign(step.Reward)
	return step, done, err
}

// CurrentTimeStep returns the current TimeStep with a clipped reward
func (c *ClipReward) CurrentTimeStep() ts.TimeStep {
	step := c.Environment.CurrentTimeStep()
	step.Reward = sign(step.Reward)
	return step
}

// Unwrap returns the wrapped environment
func (c *ClipReward) Unwrap() environment.Environment {
	return c.Environment
}

func sign(x float64) float64 {
	if x == 0 || math.IsNaN(x) {
		return 0
	}
	return math.Copysign(1, x)
}

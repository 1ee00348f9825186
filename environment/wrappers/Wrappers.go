// Package wrappers implements environment wrappers that preprocess
// the frames of Atari-style environments before they are given to an
// agent.
//
// The standard Atari preprocessing chain is:
//
//		base environment (raw RGB frames, shape (h, w, 3))
//		  -> NoopReset       random number of no-ops on reset
//		  -> FireReset       press FIRE on reset (optional)
//		  -> MaxAndSkip      repeat actions, max-pool the last two frames
//		  -> WarpFrame       grayscale and resize, shape (84, 84, 1)
//		  -> ClipReward      clip rewards to their sign (optional)
//		  -> FrameStack      stack the last k frames, shape (k, 84, 84)
//
// A Monitor may be placed directly on top of the base environment to
// record the raw frames of episodes to disk.
//
// Wrappers which take multiple steps of the wrapped environment per
// call renumber the TimeSteps they return so that TimeStep numbers are
// always consecutive within an episode.
package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// noop is the action taken by the Atari no-op
var noop = mat.NewVecDense(1, []float64{0})

// numberer renumbers the TimeSteps returned by a wrapper
type numberer struct {
	current ts.TimeStep
}

// first records step as the first TimeStep of an episode
func (n *numberer) first(step ts.TimeStep) ts.TimeStep {
	step.StepType = ts.First
	step.Reward = 0
	step.Number = 0
	n.current = step
	return step
}

// next records step as the TimeStep following the last recorded
// TimeStep
func (n *numberer) next(step ts.TimeStep) ts.TimeStep {
	step.Number = n.current.Number + 1
	n.current = step
	return step
}

// frameShape returns the (height, width, channels) shape of the frames
// of an environment
func frameShape(e environment.Environment) (h, w, c int, err error) {
	shape := e.ObservationSpec().Shape
	if len(shape) != 3 {
		return 0, 0, 0, fmt.Errorf("frameshape: observations must be "+
			"frames of shape (h, w, c)\n\twant(3 dims)\n\thave(%v)", shape)
	}
	if shape[2] != 1 && shape[2] != 3 {
		return 0, 0, 0, fmt.Errorf("frameshape: frames must have 1 or 3 "+
			"channels\n\thave(%v)", shape[2])
	}
	return shape[0], shape[1], shape[2], nil
}

//go:build gym

// Package gym provides access to OpenAI Gym's Atari environments.
//
// Environments are created with GoGym, the Go bindings for OpenAI Gym
// found at https://github.com/samuelfneumann/GoGym. Observations are
// the raw RGB screens of the emulator, flattened in (height, width,
// channel) order. Use the NoFrameskip variants of the Atari games
// (e.g. PongNoFrameskip-v4) together with the wrappers package, which
// implements frame skipping and the remaining Atari preprocessing.
//
// GoGym embeds a Python interpreter, so this package is only built
// with the gym build tag.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/gogym"
	env "github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment
	name string

	height, width int
	numActions    int

	currentStep ts.TimeStep
	discount    float64
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite with a discrete action space and an
// RGB observation of height x width pixels.
func New(name string, height, width int, discount float64,
	seed uint64) (*GymEnv, ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment: %v", err)
	}

	// Only discrete action spaces are supported
	space := goGymEnv.ActionSpace()
	if _, ok := space.(*gogym.DiscreteSpace); !ok {
		goGymEnv.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: only discrete action "+
			"spaces are supported, got %T", space)
	}
	actions := int(space.High()[0].AtVec(0)) + 1

	gymEnv := &GymEnv{
		Environment: goGymEnv,
		name:        name,
		height:      height,
		width:       width,
		numActions:  actions,
		discount:    discount,
	}

	goGymEnv.Seed(int(seed))
	t, err := gymEnv.Reset()
	if err != nil {
		goGymEnv.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	return gymEnv, t, nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	frame, err := g.frame(obs)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	stepType := ts.Mid
	if done {
		stepType = ts.Last
	}
	t := ts.New(stepType, reward, g.discount, frame,
		g.CurrentTimeStep().Number+1)
	g.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	frame, err := g.frame(obs)
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, frame, 0)
	g.currentStep = t

	return t, nil
}

// frame validates an observation from GoGym and copies it into a
// new vector
func (g *GymEnv) frame(obs mat.Vector) (*mat.VecDense, error) {
	if size := g.height * g.width * 3; obs.Len() != size {
		return nil, fmt.Errorf("frame: observation of %v is not an RGB "+
			"frame of %vx%v\n\twant(%v)\n\thave(%v)", g.name, g.height,
			g.width, size, obs.Len())
	}

	frame := mat.NewVecDense(obs.Len(), nil)
	frame.CopyVec(obs)
	return frame, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	return env.NewPixelSpec(g.height, g.width, 3)
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(g.numActions)
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() env.Spec {
	return env.NewDiscountSpec(g.discount)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

// String implements the fmt.Stringer interface
func (g *GymEnv) String() string {
	return g.name
}

// Shutdown finalizes the GoGym runtime. It should be called once all
// GymEnvs have been closed.
func Shutdown() {
	gogym.Close()
}

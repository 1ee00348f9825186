package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/godqn/environment"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// FrameStack stacks the most recent k grayscale frames into a single
// observation of shape (k, h, w), with the oldest frame first. On reset,
// the stack is filled with copies of the first frame.
//
// FrameStack emits channel-major observations, which is the input
// layout expected by the convolutional Q-networks.
type FrameStack struct {
	environment.Environment

	k             int
	height, width int
	frames        [][]float64 // Ring buffer of frames
	next          int         // Index of the oldest frame

	current ts.TimeStep
}

// NewFrameStack returns a new FrameStack which stacks k frames. The
// wrapped environment must produce grayscale frames of shape (h, w, 1).
func NewFrameStack(env environment.Environment, k int) (*FrameStack,
	ts.TimeStep, error) {
	if k < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newFrameStack: k must be "+
			"positive\n\twant(>0)\n\thave(%v)", k)
	}
	h, w, c, err := frameShape(env)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFrameStack: %v", err)
	}
	if c != 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newFrameStack: frames must "+
			"be grayscale\n\twant(1 channel)\n\thave(%v)", c)
	}

	frames := make([][]float64, k)
	for i := range frames {
		frames[i] = make([]float64, h*w)
	}

	f := &FrameStack{
		Environment: env,
		k:           k,
		height:      h,
		width:       w,
		frames:      frames,
	}

	step, err := f.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFrameStack: %v", err)
	}
	return f, step, nil
}

// Reset resets the environment and fills the stack with the first frame
func (f *FrameStack) Reset() (ts.TimeStep, error) {
	step, err := f.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}

	data := step.Observation.RawVector().Data
	for i := range f.frames {
		copy(f.frames[i], data)
	}
	f.next = 0

	step.Observation = f.stack()
	f.current = step
	return step, nil
}

// Step takes one environmental step and pushes the new frame onto the
// stack
func (f *FrameStack) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, done, err := f.Environment.Step(a)
	if err != nil {
		return step, done, err
	}

	copy(f.frames[f.next], step.Observation.RawVector().Data)
	f.next = (f.next + 1) % f.k

	step.Observation = f.stack()
	f.current = step
	return step, done, nil
}

// stack concatenates the frames, oldest first
func (f *FrameStack) stack() *mat.VecDense {
	size := f.height * f.width
	data := make([]float64, 0, f.k*size)
	for i := 0; i < f.k; i++ {
		data = append(data, f.frames[(f.next+i)%f.k]...)
	}
	return mat.NewVecDense(len(data), data)
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (f *FrameStack) CurrentTimeStep() ts.TimeStep {
	return f.current
}

// ObservationSpec returns the specification of the stacked frames
func (f *FrameStack) ObservationSpec() environment.Spec {
	return environment.NewPixelSpec(f.k, f.height, f.width)
}

// Unwrap returns the wrapped environment
func (f *FrameStack) Unwrap() environment.Environment {
	return f.Environment
}

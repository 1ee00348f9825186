package wrappers

import (
	"fmt"
	"image"

	"github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/frame"
	ts "github.com/samuelfneumann/godqn/timestep"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// Default size of warped frames
const (
	DefaultWarpWidth  = 84
	DefaultWarpHeight = 84
)

// WarpFrame converts frames to grayscale and resizes them. Observations
// of the wrapped environment must be frames of shape (h, w, c) with
// c = 1 or c = 3. Warped frames have shape (height, width, 1).
type WarpFrame struct {
	environment.Environment

	inShape       []int
	width, height int
}

// NewWarpFrame returns a new WarpFrame which resizes frames to
// width x height.
func NewWarpFrame(env environment.Environment, width,
	height int) (*WarpFrame, ts.TimeStep, error) {
	if width < 1 || height < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newWarpFrame: invalid "+
			"frame size %vx%v", width, height)
	}
	h, w, c, err := frameShape(env)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newWarpFrame: %v", err)
	}

	wf := &WarpFrame{
		Environment: env,
		inShape:     []int{h, w, c},
		width:       width,
		height:      height,
	}

	step, err := wf.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newWarpFrame: %v", err)
	}
	return wf, step, nil
}

// Reset resets the environment
func (wf *WarpFrame) Reset() (ts.TimeStep, error) {
	step, err := wf.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}
	return wf.warpStep(step)
}

// Step takes one environmental step
func (wf *WarpFrame) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, done, err := wf.Environment.Step(a)
	if err != nil {
		return step, done, err
	}
	step, err = wf.warpStep(step)
	return step, done, err
}

// CurrentTimeStep returns the current TimeStep with a warped
// observation
func (wf *WarpFrame) CurrentTimeStep() ts.TimeStep {
	step, err := wf.warpStep(wf.Environment.CurrentTimeStep())
	if err != nil {
		panic(fmt.Sprintf("currentTimeStep: %v", err))
	}
	return step
}

// warpStep replaces the observation of a TimeStep with its warped frame
func (wf *WarpFrame) warpStep(step ts.TimeStep) (ts.TimeStep, error) {
	warped, err := wf.warp(step.Observation)
	if err != nil {
		return ts.TimeStep{}, err
	}
	step.Observation = warped
	return step, nil
}

// warp converts a frame to grayscale and resizes it
func (wf *WarpFrame) warp(obs *mat.VecDense) (*mat.VecDense, error) {
	src, err := frame.ToImage(obs.RawVector().Data, wf.inShape)
	if err != nil {
		return nil, fmt.Errorf("warp: %v", err)
	}

	dst := image.NewGray(image.Rect(0, 0, wf.width, wf.height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	data := frame.FromGray(dst)
	return mat.NewVecDense(len(data), data), nil
}

// ObservationSpec returns the observation specification of the
// warped frames
func (wf *WarpFrame) ObservationSpec() environment.Spec {
	return environment.NewPixelSpec(wf.height, wf.width, 1)
}

// Unwrap returns the wrapped environment
func (wf *WarpFrame) Unwrap() environment.Environment {
	return wf.Environment
}

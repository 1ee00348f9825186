// Package catch implements the Catch environment, a small pixel-based
// game that can stand in for an Atari game when testing agents that
// learn from frames.
//
// A ball starts in a random column of the top row and falls one row
// per step. The agent controls a paddle on the bottom row which can
// stay in place, move left, or move right. When the ball reaches the
// bottom row, the episode ends with a reward of +1 if the paddle is
// underneath the ball and -1 otherwise. Observations are RGB frames
// of shape (rows*scale, cols*scale, 3).
package catch

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	env "github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/frame"
	ts "github.com/samuelfneumann/godqn/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Available actions
const (
	Stay int = iota
	Left
	Right
)

const numActions = 3

// Catch implements the Catch environment
type Catch struct {
	rows, cols, scale int

	ballRow, ballCol int
	paddleCol        int

	discount    float64
	rng         *rand.Rand
	currentStep ts.TimeStep
	done        bool
}

// New returns a new Catch environment with the given number of rows
// and columns. Each cell is rendered as a scale x scale square.
func New(rows, cols, scale int, discount float64, seed uint64) (*Catch,
	ts.TimeStep, error) {
	if rows < 2 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: catch needs at least "+
			"2 rows\n\twant(>=2)\n\thave(%v)", rows)
	}
	if cols < 1 || scale < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: columns and scale "+
			"must be positive\n\thave(cols=%v, scale=%v)", cols, scale)
	}

	c := &Catch{
		rows:     rows,
		cols:     cols,
		scale:    scale,
		discount: discount,
		rng:      rand.New(rand.NewSource(seed)),
	}

	step, err := c.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, err
	}
	return c, step, nil
}

// Reset resets the environment to a starting state
func (c *Catch) Reset() (ts.TimeStep, error) {
	c.ballRow = 0
	c.ballCol = c.rng.Intn(c.cols)
	c.paddleCol = c.cols / 2
	c.done = false

	obs, err := c.render()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	c.currentStep = ts.New(ts.First, 0, c.discount, obs, 0)
	return c.currentStep, nil
}

// Step takes a single environmental step
func (c *Catch) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if c.done {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"the environment must be reset")
	}
	if a.Len() != 1 {
		return ts.TimeStep{}, true, fmt.Errorf("step: actions must be "+
			"1-dimensional\n\twant(1)\n\thave(%v)", a.Len())
	}

	switch action := int(a.AtVec(0)); action {
	case Stay:
	case Left:
		if c.paddleCol > 0 {
			c.paddleCol--
		}
	case Right:
		if c.paddleCol < c.cols-1 {
			c.paddleCol++
		}
	default:
		return ts.TimeStep{}, true, fmt.Errorf("step: illegal action %v",
			action)
	}
	c.ballRow++

	reward := 0.0
	stepType := ts.Mid
	if c.ballRow == c.rows-1 {
		c.done = true
		stepType = ts.Last
		if c.ballCol == c.paddleCol {
			reward = 1.0
		} else {
			reward = -1.0
		}
	}

	obs, err := c.render()
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	c.currentStep = ts.New(stepType, reward, c.discount, obs,
		c.currentStep.Number+1)
	return c.currentStep, c.done, nil
}

// render draws the current state of the game as an RGB frame
func (c *Catch) render() (*mat.VecDense, error) {
	s := float64(c.scale)
	dc := gg.NewContext(c.cols*c.scale, c.rows*c.scale)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(float64(c.ballCol)*s, float64(c.ballRow)*s, s, s)
	dc.Fill()

	dc.SetRGB(0.5, 0.5, 1)
	dc.DrawRectangle(float64(c.paddleCol)*s, float64(c.rows-1)*s, s, s)
	dc.Fill()

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("render: unexpected image type %T",
			dc.Image())
	}
	data := frame.FromRGB(img)
	return mat.NewVecDense(len(data), data), nil
}

// CurrentTimeStep returns the current timestep in the environment
func (c *Catch) CurrentTimeStep() ts.TimeStep {
	return c.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (c *Catch) ObservationSpec() env.Spec {
	return env.NewPixelSpec(c.rows*c.scale, c.cols*c.scale, 3)
}

// ActionSpec returns the action specification of the environment
func (c *Catch) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(numActions)
}

// DiscountSpec returns the discount specification of the environment
func (c *Catch) DiscountSpec() env.Spec {
	return env.NewDiscountSpec(c.discount)
}

// Close implements the environment.Environment interface
func (c *Catch) Close() error {
	return nil
}

// String implements the fmt.Stringer interface
func (c *Catch) String() string {
	return fmt.Sprintf("Catch(%vx%v) | ball: (%v, %v) | paddle: %v", c.rows,
		c.cols, c.ballRow, c.ballCol, c.paddleCol)
}

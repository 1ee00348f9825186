package timestep

import "gonum.org/v1/gonum/mat"

// Transition is a single (s, a, r, s', done) tuple of experience.
type Transition struct {
	State     *mat.VecDense
	Action    int
	Reward    float64
	Discount  float64
	NextState *mat.VecDense
	Done      bool
}

// NewTransition creates a Transition from the TimeStep at which an
// action was taken and the TimeStep that the action lead to.
func NewTransition(step TimeStep, action int, next TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  next.Discount,
		NextState: next.Observation,
		Done:      next.Last(),
	}
}

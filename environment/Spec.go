package environment

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	errNotDiscrete = errors.New("numactions: actions are not discrete")
	errActionDim   = errors.New("numactions: actions must be 1-dimensional")
	errActionStart = errors.New("numactions: actions must be enumerated " +
		"starting from 0")
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment.
//
// Shape describes the layout of the flattened data. Raw image
// observations have shape (height, width, channels); stacked frames
// have shape (frames, height, width).
type Spec struct {
	Shape      []int
	Type       SpecType
	LowerBound *mat.VecDense
	UpperBound *mat.VecDense
	Cardinality
}

// NewSpec constructs a new environment specification. The bounds must
// have one element for each element described by shape.
func NewSpec(shape []int, t SpecType, lowerBound,
	upperBound *mat.VecDense, cardinality Cardinality) Spec {
	if size := Size(shape); size != lowerBound.Len() {
		panic(fmt.Sprintf("shape size %v must match lower bounds length %v",
			size, lowerBound.Len()))
	}
	if size := Size(shape); size != upperBound.Len() {
		panic(fmt.Sprintf("shape size %v must match upper bounds length %v",
			size, upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// NewDiscreteActionSpec returns the specification of n discrete actions
// enumerated from 0.
func NewDiscreteActionSpec(n int) Spec {
	low := mat.NewVecDense(1, nil)
	high := mat.NewVecDense(1, []float64{float64(n - 1)})
	return NewSpec([]int{1}, Action, low, high, Discrete)
}

// NewPixelSpec returns the specification of an image observation with
// values in [0, 255].
func NewPixelSpec(shape ...int) Spec {
	size := Size(shape)
	low := mat.NewVecDense(size, nil)
	high := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		high.SetVec(i, 255)
	}
	return NewSpec(shape, Observation, low, high, Discrete)
}

// NewDiscountSpec returns the specification of a constant discount
func NewDiscountSpec(discount float64) Spec {
	bound := mat.NewVecDense(1, []float64{discount})
	return NewSpec([]int{1}, Discount, bound, bound, Continuous)
}

// Size returns the number of elements described by a shape
func Size(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

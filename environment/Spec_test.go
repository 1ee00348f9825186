package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPixelSpec(t *testing.T) {
	spec := NewPixelSpec(4, 3, 2)
	assert.Equal(t, []int{4, 3, 2}, spec.Shape)
	assert.Equal(t, 24, spec.LowerBound.Len())
	assert.Equal(t, 255.0, spec.UpperBound.AtVec(23))
	assert.Equal(t, 0.0, spec.LowerBound.AtVec(5))
}

func TestNewSpecPanicsOnShapeMismatch(t *testing.T) {
	low := NewDiscreteActionSpec(2).LowerBound
	assert.Panics(t, func() {
		NewSpec([]int{2, 2}, Action, low, low, Discrete)
	})
}

func TestSize(t *testing.T) {
	assert.Equal(t, 1, Size(nil))
	assert.Equal(t, 7056, Size([]int{84, 84}))
	assert.Equal(t, 14112, Size([]int{2, 84, 84}))
}

func TestDiscreteActionSpec(t *testing.T) {
	spec := NewDiscreteActionSpec(6)
	require.Equal(t, Discrete, spec.Cardinality)
	assert.Equal(t, 0.0, spec.LowerBound.AtVec(0))
	assert.Equal(t, 5.0, spec.UpperBound.AtVec(0))
}

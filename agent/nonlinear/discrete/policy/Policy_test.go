package policy

import (
	"testing"

	"github.com/samuelfneumann/godqn/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

// newPolicy returns a linear EGreedy policy over 2 features and 3
// actions whose output weights are all ones, so the action values are
// all equal to the sum of the inputs
func newPolicy(t *testing.T, epsilon float64) (*EGreedy, G.VM) {
	t.Helper()
	net, err := network.NewQNet(G.NewGraph(), []int{2}, 1, 3, nil, nil, nil,
		G.Ones())
	require.NoError(t, err)

	p, err := NewEGreedy(epsilon, net, 1)
	require.NoError(t, err)
	return p, G.NewTapeMachine(p.Graph())
}

func TestEGreedyGreedyTies(t *testing.T) {
	p, vm := newPolicy(t, 0)
	defer vm.Close()

	require.NoError(t, p.SetInput([]float64{1, 2}))
	require.NoError(t, vm.RunAll())
	assert.Equal(t, []float64{3, 3, 3}, p.ActionValues())

	// All actions are tied, so each should be chosen at some point
	counts := make([]int, 3)
	for i := 0; i < 300; i++ {
		action, value := p.SelectAction()
		assert.Equal(t, 3.0, value)
		counts[int(action.AtVec(0))]++
	}
	vm.Reset()

	for _, c := range counts {
		assert.Greater(t, c, 0)
	}
}

func TestEGreedyGreedy(t *testing.T) {
	p, vm := newPolicy(t, 0)
	defer vm.Close()

	// Make action 1 the greedy action
	out := p.Learnables()[len(p.Learnables())-1] // output bias
	bias := out.Value().Data().([]float64)
	bias[1] = 10

	require.NoError(t, p.SetInput([]float64{0, 0}))
	require.NoError(t, vm.RunAll())
	for i := 0; i < 50; i++ {
		action, value := p.SelectAction()
		assert.Equal(t, 1.0, action.AtVec(0))
		assert.Equal(t, 10.0, value)
	}
	vm.Reset()
}

func TestEGreedyRandom(t *testing.T) {
	p, vm := newPolicy(t, 1)
	defer vm.Close()
	p.SetEpsilon(1)
	assert.Equal(t, 1.0, p.Epsilon())

	require.NoError(t, p.SetInput([]float64{0, 0}))
	require.NoError(t, vm.RunAll())
	seen := map[float64]bool{}
	for i := 0; i < 300; i++ {
		action, _ := p.SelectAction()
		seen[action.AtVec(0)] = true
	}
	vm.Reset()
	assert.Len(t, seen, 3)
}

func TestNewEGreedyInvalid(t *testing.T) {
	net, err := network.NewQNet(G.NewGraph(), []int{2}, 4, 3, nil, nil,
		nil, G.Ones())
	require.NoError(t, err)
	_, err = NewEGreedy(0.1, net, 1)
	assert.Error(t, err)

	net, err = network.NewQNet(G.NewGraph(), []int{2}, 1, 3, nil, nil,
		nil, G.Ones())
	require.NoError(t, err)
	_, err = NewEGreedy(1.5, net, 1)
	assert.Error(t, err)
}

func TestLinearDecay(t *testing.T) {
	d := LinearDecay{Start: 1, End: 0.1, Steps: 100}
	require.NoError(t, d.Validate())
	assert.InDelta(t, 0.009, d.Rate(), 1e-12)

	eps := d.Start
	for i := 0; i < 50; i++ {
		eps = d.Next(eps)
	}
	assert.InDelta(t, 0.55, eps, 1e-9)
	assert.InDelta(t, d.At(50), eps, 1e-9)

	for i := 0; i < 100; i++ {
		eps = d.Next(eps)
	}
	assert.Equal(t, 0.1, eps)
	assert.Equal(t, 0.1, d.At(1000))

	assert.Error(t, LinearDecay{Start: 0.1, End: 1, Steps: 10}.Validate())
	assert.Error(t, LinearDecay{Start: 1, End: 0.1, Steps: 0}.Validate())
	assert.NoError(t, LinearDecay{Start: 0.1, End: 0.1}.Validate())
}

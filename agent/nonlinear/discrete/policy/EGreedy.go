// Package policy implements policies using nonlinear function
// approximation with Gorgonia.
package policy

import (
	"fmt"

	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// EGreedy implements an epsilon greedy policy using a neural network
// which predicts one value per action. The network must take inputs
// in batches of size 1.
//
// EGreedy does not have a VM of its own. An external VM should be used
// to run the computational graph of the network. The VM should always
// be run before selecting an action with the policy:
//
//	Set up VM with the policy's graph:  vm = NewTapeMachine(p.Graph())
//	Set input to the policy's network:  p.SetInput(obs)
//	Predict the action values:          vm.RunAll()
//	Select an action:                   action, value = p.SelectAction()
//	Reset the VM:                       vm.Reset()
type EGreedy struct {
	network.NeuralNet
	epsilon float64

	rng *rand.Rand
}

// NewEGreedy returns a new EGreedy policy which selects actions using
// the action values predicted by net.
func NewEGreedy(epsilon float64, net network.NeuralNet,
	seed uint64) (*EGreedy, error) {
	if net.BatchSize() != 1 {
		return nil, fmt.Errorf("newEGreedy: policy networks must have a "+
			"batch size of 1\n\twant(1)\n\thave(%v)", net.BatchSize())
	}
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("newEGreedy: epsilon must be in [0, 1]\n\t"+
			"have(%v)", epsilon)
	}

	return &EGreedy{
		NeuralNet: net,
		epsilon:   epsilon,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Network returns the neural network function approximator that the
// policy uses.
func (e *EGreedy) Network() network.NeuralNet {
	return e.NeuralNet
}

// SetEpsilon sets the value for epsilon in the epsilon greedy policy.
func (e *EGreedy) SetEpsilon(ε float64) {
	e.epsilon = ε
}

// Epsilon gets the value of epsilon for the policy.
func (e *EGreedy) Epsilon() float64 {
	return e.epsilon
}

// ActionValues returns the action values predicted by the last run of
// the computational graph
func (e *EGreedy) ActionValues() []float64 {
	if e.Output() == nil {
		panic("actionValues: vm must be run before selecting an action")
	}
	return e.Output().Data().([]float64)
}

// SelectAction selects an action according to the action values
// generated from the last run of the computational graph. This
// function returns the action selected as well as the approximated
// value of that action.
func (e *EGreedy) SelectAction() (*mat.VecDense, float64) {
	actionValues := e.ActionValues()

	// With probability epsilon return a random action
	if e.rng.Float64() < e.epsilon {
		action := e.rng.Intn(len(actionValues))
		return mat.NewVecDense(1, []float64{float64(action)}),
			actionValues[action]
	}

	// If multiple actions have max value, return a random max-valued action
	_, maxIndices := floatutils.MaxSlice(actionValues)
	action := maxIndices[e.rng.Intn(len(maxIndices))]
	return mat.NewVecDense(1, []float64{float64(action)}),
		actionValues[action]
}

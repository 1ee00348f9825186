// Package network implements neural networks as Gorgonia computational
// graphs.
//
// A NeuralNet only populates a G.ExprGraph. It does not run the graph
// itself: an external VM should be used to run the computational graph
// after setting the input of the network with SetInput. Once the VM has
// been run, Output returns the values predicted by the network.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network whose forward pass is added to
// a Gorgonia computational graph
type NeuralNet interface {
	// Graph returns the graph the network belongs to
	Graph() *G.ExprGraph

	// Clone clones the network to a new graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new graph, changing the
	// batch size of its input
	CloneWithBatch(int) (NeuralNet, error)

	BatchSize() int
	Features() int // Number of features in a single input
	Outputs() int  // Number of outputs for a single input

	// SetInput sets the value of the input node before the graph is run.
	// The input must contain BatchSize() * Features() values.
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network,
	// while Polyak sets the weights to a polyak average of the existing
	// weights and the weights of another network
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the prediction from the last run of
	// the graph, which has shape (BatchSize(), Outputs()).
	Output() G.Value
	Prediction() *G.Node
}

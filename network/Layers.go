package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ConvLayer describes a 2D convolutional layer with square kernels,
// no padding, and a ReLU activation
type ConvLayer struct {
	Filters int `yaml:"Filters"`
	Kernel  int `yaml:"Kernel"`
	Stride  int `yaml:"Stride"`
}

// OutSize returns the size of the output along a spatial dimension of
// size in
func (c ConvLayer) OutSize(in int) int {
	return (in-c.Kernel)/c.Stride + 1
}

// CheckConvLayers returns an error if the convolutional layers cannot
// be applied in sequence to inputs of the given height and width
func CheckConvLayers(conv []ConvLayer, height, width int) error {
	for i, c := range conv {
		if c.Filters < 1 || c.Kernel < 1 || c.Stride < 1 {
			return fmt.Errorf("checkConvLayers: invalid convolutional "+
				"layer %v: %+v", i, c)
		}
		if c.Kernel > height || c.Kernel > width {
			return fmt.Errorf("checkConvLayers: kernel of layer %v too "+
				"large for input\n\twant(<=%v)\n\thave(%v)", i,
				min(height, width), c.Kernel)
		}
		height, width = c.OutSize(height), c.OutSize(width)
	}
	return nil
}

// DefaultConvLayers returns the convolutional layers used by the DQN
// agent: 16 8x8 filters with stride 4, 32 4x4 filters with stride 2,
// then 32 3x3 filters with stride 1.
func DefaultConvLayers() []ConvLayer {
	return []ConvLayer{
		{Filters: 16, Kernel: 8, Stride: 4},
		{Filters: 32, Kernel: 4, Stride: 2},
		{Filters: 32, Kernel: 3, Stride: 1},
	}
}

// layer is a single layer of a neural network
type layer interface {
	fwd(*G.Node) (*G.Node, error)
	cloneTo(*G.ExprGraph) layer
	learnables() G.Nodes
}

// convLayer implements a convolutional layer of a neural network. Input
// and output are in (batch, channels, height, width) order.
type convLayer struct {
	filter *G.Node // (out channels, in channels, kernel, kernel)
	bias   *G.Node // (1, out channels, 1, 1)
	stride int
	act    *Activation
}

func newConvLayer(g *G.ExprGraph, inChannels int, c ConvLayer,
	init G.InitWFn, name string) *convLayer {
	filter := G.NewTensor(g, tensor.Float64, 4,
		G.WithShape(c.Filters, inChannels, c.Kernel, c.Kernel),
		G.WithName(name+"W"), G.WithInit(init))
	bias := G.NewTensor(g, tensor.Float64, 4,
		G.WithShape(1, c.Filters, 1, 1),
		G.WithName(name+"B"), G.WithInit(G.Zeroes()))

	return &convLayer{
		filter: filter,
		bias:   bias,
		stride: c.Stride,
		act:    ReLU(),
	}
}

// fwd adds the forward pass of the convLayer to the computational graph
func (c *convLayer) fwd(x *G.Node) (*G.Node, error) {
	kernel := c.filter.Shape()[2:]
	x, err := G.Conv2d(x, c.filter, tensor.Shape{kernel[0], kernel[1]},
		[]int{0, 0}, []int{c.stride, c.stride}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("fwd: convolution: %v", err)
	}

	// Broadcast the bias over the batch and spatial dimensions
	x, err = G.BroadcastAdd(x, c.bias, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, fmt.Errorf("fwd: bias: %v", err)
	}
	return c.act.fwd(x)
}

func (c *convLayer) cloneTo(g *G.ExprGraph) layer {
	return &convLayer{
		filter: c.filter.CloneTo(g),
		bias:   c.bias.CloneTo(g),
		stride: c.stride,
		act:    c.act,
	}
}

func (c *convLayer) learnables() G.Nodes {
	return G.Nodes{c.filter, c.bias}
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node // (in, out)
	bias    *G.Node // (1, out)
	act     *Activation
}

func newFCLayer(g *G.ExprGraph, in, out int, act *Activation,
	init G.InitWFn, name string) *fcLayer {
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
		G.WithName(name+"W"), G.WithInit(init))
	bias := G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
		G.WithName(name+"B"), G.WithInit(G.Zeroes()))

	return &fcLayer{weights: weights, bias: bias, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: weights: %v", err)
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("fwd: bias: %v", err)
	}
	return f.act.fwd(x)
}

func (f *fcLayer) cloneTo(g *G.ExprGraph) layer {
	return &fcLayer{
		weights: f.weights.CloneTo(g),
		bias:    f.bias.CloneTo(g),
		act:     f.act,
	}
}

func (f *fcLayer) learnables() G.Nodes {
	return G.Nodes{f.weights, f.bias}
}

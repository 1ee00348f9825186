package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// QNet implements a convolutional action-value network. Given an
// input of frames of shape (channels, height, width), the QNet
// computes:
//
//	conv layers (ReLU) -> flatten -> hidden layers -> linear output
//
// where the output has one value per action. If no convolutional
// layers are used, the input may have any shape and is flattened before
// the hidden layers, so a QNet can also be used as a multi-layered
// perceptron.
type QNet struct {
	g         *G.ExprGraph
	input     *G.Node
	batchSize int

	// Architecture, needed for cloning and gobbing
	inShape     []int
	numOutputs  int
	conv        []ConvLayer
	hiddenSizes []int
	activations []*Activation

	layers []layer

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    *G.Value
}

// NewQNet creates and returns a new QNet on graph g which takes inputs
// of shape inShape in batches of size batch and predicts outputs
// values. The parameter init determines the weight initialization
// scheme for all weights; biases are initialized to 0.
//
// For index i, hiddenSizes[i] is the number of nodes in hidden layer i
// and activations[i] is the activation function for hidden layer i.
// A final linear layer with outputs nodes is always added.
func NewQNet(g *G.ExprGraph, inShape []int, batch, outputs int,
	conv []ConvLayer, hiddenSizes []int, activations []*Activation,
	init G.InitWFn) (*QNet, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newQNet: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newQNet: batch size and outputs must be "+
			"positive\n\thave(batch=%v, outputs=%v)", batch, outputs)
	}
	if len(conv) > 0 && len(inShape) != 3 {
		return nil, fmt.Errorf("newQNet: convolutional layers need inputs "+
			"of shape (channels, height, width)\n\thave(%v)", inShape)
	}

	inputShape := append([]int{batch}, inShape...)
	input := G.NewTensor(g, tensor.Float64, len(inputShape),
		G.WithShape(inputShape...), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	layers, err := newLayers(g, inShape, outputs, conv, hiddenSizes,
		activations, init)
	if err != nil {
		return nil, fmt.Errorf("newQNet: %v", err)
	}

	net := &QNet{
		g:           g,
		input:       input,
		batchSize:   batch,
		inShape:     append([]int(nil), inShape...),
		numOutputs:  outputs,
		conv:        append([]ConvLayer(nil), conv...),
		hiddenSizes: append([]int(nil), hiddenSizes...),
		activations: append([]*Activation(nil), activations...),
		layers:      layers,
	}

	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newQNet: could not compute forward pass: %v",
			err)
	}
	return net, nil
}

// newLayers creates the layers of a QNet, checking that each
// convolution fits its input
func newLayers(g *G.ExprGraph, inShape []int, outputs int,
	conv []ConvLayer, hiddenSizes []int, activations []*Activation,
	init G.InitWFn) ([]layer, error) {
	layers := make([]layer, 0, len(conv)+len(hiddenSizes)+1)

	features := 1
	for _, dim := range inShape {
		features *= dim
	}

	if len(conv) > 0 {
		channels, height, width := inShape[0], inShape[1], inShape[2]
		if err := CheckConvLayers(conv, height, width); err != nil {
			return nil, fmt.Errorf("newLayers: %v", err)
		}
		for i, c := range conv {
			name := fmt.Sprintf("conv%d", i)
			layers = append(layers, newConvLayer(g, channels, c, init, name))
			channels, height, width = c.Filters, c.OutSize(height),
				c.OutSize(width)
		}
		features = channels * height * width
	}

	in := features
	for i, size := range hiddenSizes {
		if size < 1 {
			return nil, fmt.Errorf("newLayers: hidden layer %v must have "+
				"positive size\n\thave(%v)", i, size)
		}
		name := fmt.Sprintf("fc%d", i)
		layers = append(layers, newFCLayer(g, in, size, activations[i], init,
			name))
		in = size
	}
	layers = append(layers, newFCLayer(g, in, outputs, Identity(), init,
		"out"))

	return layers, nil
}

// fwd performs the forward pass of the QNet on the input node
func (q *QNet) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range q.layers {
		// Flatten the input to the first fully connected layer
		if _, ok := l.(*fcLayer); ok && pred.Dims() != 2 {
			features := pred.Shape().TotalSize() / q.batchSize
			if pred, err = G.Reshape(pred, tensor.Shape{q.batchSize,
				features}); err != nil {
				return nil, fmt.Errorf("fwd: could not flatten: %v", err)
			}
		}

		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	q.prediction = pred
	q.predVal = new(G.Value)
	G.Read(q.prediction, q.predVal)

	return pred, nil
}

// Graph returns the computational graph of the QNet.
func (q *QNet) Graph() *G.ExprGraph {
	return q.g
}

// Clone clones a QNet to a new graph
func (q *QNet) Clone() (NeuralNet, error) {
	return q.CloneWithBatch(q.batchSize)
}

// CloneWithBatch clones a QNet to a new graph with a new input batch
// size. The weights of the clone are copies of the weights of q.
func (q *QNet) CloneWithBatch(batch int) (NeuralNet, error) {
	if batch < 1 {
		return nil, fmt.Errorf("cloneWithBatch: batch size must be "+
			"positive\n\thave(%v)", batch)
	}
	g := G.NewGraph()

	inputShape := append([]int{batch}, q.inShape...)
	input := G.NewTensor(g, tensor.Float64, len(inputShape),
		G.WithShape(inputShape...), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	layers := make([]layer, len(q.layers))
	for i := range q.layers {
		layers[i] = q.layers[i].cloneTo(g)
	}

	net := &QNet{
		g:           g,
		input:       input,
		batchSize:   batch,
		inShape:     q.inShape,
		numOutputs:  q.numOutputs,
		conv:        q.conv,
		hiddenSizes: q.hiddenSizes,
		activations: q.activations,
		layers:      layers,
	}
	if _, err := net.fwd(input); err != nil {
		panic(fmt.Sprintf("cloneWithBatch: could not clone: %v", err))
	}

	return net, nil
}

// BatchSize returns the batch size of inputs to the network
func (q *QNet) BatchSize() int {
	return q.batchSize
}

// Features returns the number of features in a single input
func (q *QNet) Features() int {
	features := 1
	for _, dim := range q.inShape {
		features *= dim
	}
	return features
}

// InShape returns the shape of a single input
func (q *QNet) InShape() []int {
	return append([]int(nil), q.inShape...)
}

// Outputs returns the number of outputs predicted for a single input
func (q *QNet) Outputs() int {
	return q.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (q *QNet) SetInput(input []float64) error {
	if len(input) != q.Features()*q.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", q.Features()*q.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(q.input.Shape()...),
	)
	return G.Let(q.input, inputTensor)
}

// Set sets the weights of a QNet to be equal to the weights of another
// network with the same architecture
func (q *QNet) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
	if err := sameShapes(nodes, sourceNodes); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	for i := range nodes {
		weights := sourceNodes[i].Value().(*tensor.Dense).Clone()
		if err := G.Let(nodes[i], weights.(*tensor.Dense)); err != nil {
			return fmt.Errorf("set: %v", err)
		}
	}
	return nil
}

// Polyak sets the weights of a QNet to be a polyak average between its
// existing weights and the weights of another network:
//
//	w <- (1 - tau) * w + tau * w_source
func (q *QNet) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := q.Learnables()
	if err := sameShapes(nodes, sourceNodes); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}

		newWeights, err := weights.Add(sourceWeights)
		if err != nil {
			return fmt.Errorf("polyak: %v", err)
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return fmt.Errorf("polyak: %v", err)
		}
	}
	return nil
}

// sameShapes returns an error if two sets of learnables do not have
// the same shapes
func sameShapes(nodes, sourceNodes G.Nodes) error {
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("invalid number of learnables\n\twant(%v)"+
			"\n\thave(%v)", len(nodes), len(sourceNodes))
	}
	for i := range nodes {
		if !nodes[i].Shape().Eq(sourceNodes[i].Shape()) {
			return fmt.Errorf("learnable %v has invalid shape\n\twant(%v)"+
				"\n\thave(%v)", i, nodes[i].Shape(), sourceNodes[i].Shape())
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a QNet
func (q *QNet) Learnables() G.Nodes {
	if q.learnables == nil {
		learnables := make(G.Nodes, 0, 2*len(q.layers))
		for _, l := range q.layers {
			learnables = append(learnables, l.learnables()...)
		}
		q.learnables = learnables
	}
	return q.learnables
}

// Model returns the learnables nodes with their gradients.
func (q *QNet) Model() []G.ValueGrad {
	if q.model == nil {
		model := make([]G.ValueGrad, 0, len(q.Learnables()))
		for _, node := range q.Learnables() {
			model = append(model, node)
		}
		q.model = model
	}
	return q.model
}

// Output returns the output of the QNet from the last run of its graph
func (q *QNet) Output() G.Value {
	return *q.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the QNet
func (q *QNet) Prediction() *G.Node {
	return q.prediction
}

// qnetArch is the gob-encoded architecture of a QNet
type qnetArch struct {
	InShape     []int
	BatchSize   int
	Outputs     int
	Conv        []ConvLayer
	HiddenSizes []int
	Activations []*Activation
}

// GobEncode implements the gob.GobEncoder interface. The architecture
// of the QNet is encoded, followed by the value of each learnable.
func (q *QNet) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	arch := qnetArch{
		InShape:     q.inShape,
		BatchSize:   q.batchSize,
		Outputs:     q.numOutputs,
		Conv:        q.conv,
		HiddenSizes: q.hiddenSizes,
		Activations: q.activations,
	}
	if err := enc.Encode(arch); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode architecture: %v",
			err)
	}

	for i, node := range q.Learnables() {
		if err := enc.Encode(node.Value().(*tensor.Dense)); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode learnable "+
				"%v: %v", i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded QNet
// is constructed on a new graph.
func (q *QNet) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var arch qnetArch
	if err := dec.Decode(&arch); err != nil {
		return fmt.Errorf("gobdecode: could not decode architecture: %v",
			err)
	}

	net, err := NewQNet(G.NewGraph(), arch.InShape, arch.BatchSize,
		arch.Outputs, arch.Conv, arch.HiddenSizes, arch.Activations,
		G.Zeroes())
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct network: %v", err)
	}

	for i, node := range net.Learnables() {
		weights := new(tensor.Dense)
		if err := dec.Decode(weights); err != nil {
			return fmt.Errorf("gobdecode: could not decode learnable %v: %v",
				i, err)
		}
		if !weights.Shape().Eq(node.Shape()) {
			return fmt.Errorf("gobdecode: learnable %v has invalid shape"+
				"\n\twant(%v)\n\thave(%v)", i, node.Shape(), weights.Shape())
		}
		if err := G.Let(node, weights); err != nil {
			return fmt.Errorf("gobdecode: %v", err)
		}
	}

	*q = *net
	return nil
}

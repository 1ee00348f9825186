// Package deepq implements the DQN algorithm for environments with
// pixel observations and discrete actions.
package deepq

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"

	"github.com/samuelfneumann/godqn/agent"
	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/summary"
	ts "github.com/samuelfneumann/godqn/timestep"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Tags of the summaries recorded by the agent
const (
	LossTag     = "v_loss"    // Loss of each update
	QValueTag   = "Q-value"   // Mean value of the actions in each update
	QValuesTag  = "Q-values"  // Values of the actions in each update
	MeanLossTag = "mean_loss" // Mean loss between target updates
)

// pixelScale scales pixel observations to [0, 1]
const pixelScale = 1.0 / 255.0

var _ agent.Saver = &DQN{}

// DQN implements the deep Q-network algorithm. Observations are
// expected to be stacked frames with pixel values in [0, 255], which
// are scaled to [0, 1] before being given to the networks.
//
// DQN uses three networks with the same weights:
//
//	behaviour: selects actions one at a time
//	train:     learns weights from batches of transitions
//	target:    provides the update target for a batch of transitions
//
// The behaviour network's weights are set to those of the training
// network after each update. The target network's weights are updated
// every TargetUpdateInterval steps.
type DQN struct {
	behaviour   *policy.EGreedy
	behaviourVM G.VM

	trainNet   *network.QNet
	trainNetVM G.VM
	solver     G.Solver

	targetNet   *network.QNet
	targetNetVM G.VM

	// Input nodes of the training graph used to compute the update
	// target and loss:
	//
	//	y = r + γ * (1 - done) * max[Q_target(s', a')]
	//	L = mean[(y - Q(s, a))²]
	//
	// where nextStateActionValues provides Q_target(s', a') for all a'
	// and is computed by the target network. Discounts hold
	// γ * (1 - done) and selectedActions holds one-hot actions.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node
	selectedActions       *G.Node
	costVal               *G.Value
	selectedVal           *G.Value

	replay     *expreplay.Buffer
	batchSize  int
	numActions int
	discount   float64

	exploration policy.LinearDecay
	epsilon     float64
	testEpsilon float64

	updateFreq           int
	targetUpdateInterval int
	tau                  float64

	steps   int // Environmental steps taken
	updates int // Gradient updates performed
	losses  []float64

	prevStep ts.TimeStep
	eval     bool

	recorder summary.Recorder
	logger   *zap.Logger
}

// New creates and returns a new DQN agent on environment env
func New(env environment.Environment, config Config,
	seed uint64) (*DQN, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	numActions, err := environment.NumActions(env)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	obsShape := env.ObservationSpec().Shape
	batchSize := config.BatchSize()

	// Behaviour network for selecting actions
	net, err := network.NewQNet(G.NewGraph(), obsShape, 1, numActions,
		config.ConvLayers, config.HiddenSizes, config.Activations,
		config.InitWFn.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour network: %v",
			err)
	}
	behaviour, err := policy.NewEGreedy(config.Exploration.Start, net, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	behaviourVM := G.NewTapeMachine(net.Graph())

	// Create the target network which provides the update target
	targetClone, err := net.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}
	targetNet := targetClone.(*network.QNet)
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	// Create a training network which learns the weights
	trainClone, err := net.CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training network: %v",
			err)
	}
	trainNet := trainClone.(*network.QNet)
	gTrain := trainNet.Graph()

	// Create nodes to compute the update target
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("nextStateActionVals"),
		G.WithInit(G.Zeroes()))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"), G.WithInit(G.Zeroes()))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"), G.WithInit(G.Zeroes()))

	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Actions selected in the previous states, needed to pick out the
	// predicted values of the actions that were taken
	selectedActions := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("actionSelected"),
		G.WithInit(G.Zeroes()))
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction(),
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Compute the mean squared TD error
	losses := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	costVal, selectedVal := new(G.Value), new(G.Value)
	G.Read(cost, costVal)
	G.Read(selectedActionsValue, selectedVal)

	trainNetVM := G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))

	replay, err := config.ExpReplay.Create(environment.Size(obsShape),
		numActions, seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	return &DQN{
		behaviour:             behaviour,
		behaviourVM:           behaviourVM,
		trainNet:              trainNet,
		trainNetVM:            trainNetVM,
		solver:                config.Solver.Config.Create(),
		targetNet:             targetNet,
		targetNetVM:           targetNetVM,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		selectedActions:       selectedActions,
		costVal:               costVal,
		selectedVal:           selectedVal,
		replay:                replay,
		batchSize:             batchSize,
		numActions:            numActions,
		discount:              config.Discount,
		exploration:           config.Exploration,
		epsilon:               config.Exploration.Start,
		testEpsilon:           config.TestEpsilon,
		updateFreq:            config.UpdateFreq,
		targetUpdateInterval:  config.TargetUpdateInterval,
		tau:                   config.Tau,
		recorder:              summary.NewNop(),
		logger:                zap.NewNop(),
	}, nil
}

// SetRecorder sets the Recorder to which summaries are recorded
func (d *DQN) SetRecorder(r summary.Recorder) {
	d.recorder = r
}

// SetLogger sets the logger of the agent
func (d *DQN) SetLogger(l *zap.Logger) {
	d.logger = l
}

// ObserveFirst observes and records the first episodic timestep
func (d *DQN) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep %v is not the first "+
			"timestep of an episode", t.Number)
	}
	d.prevStep = t
	return nil
}

// Observe records the transition caused by taking action in the last
// observed timestep. In evaluation mode, transitions are not stored.
func (d *DQN) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: actions must be 1-dimensional\n\t"+
			"have(%v)", action.Len())
	}
	if d.prevStep.Observation == nil {
		return fmt.Errorf("observe: no previous timestep, ObserveFirst " +
			"must be called at the start of each episode")
	}

	if !d.eval {
		transition := ts.NewTransition(d.prevStep, int(action.AtVec(0)),
			nextStep)
		if err := d.replay.Add(transition); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
	}

	d.prevStep = nextStep
	return nil
}

// EndEpisode performs cleanup at the end of an episode
func (d *DQN) EndEpisode() {
	d.prevStep = ts.TimeStep{}
}

// Step should be called once after each environmental step. Step
// decays epsilon, then, once the replay buffer holds enough
// transitions, updates the weights every UpdateFreq steps and updates
// the target network every TargetUpdateInterval steps.
func (d *DQN) Step() error {
	d.steps++
	d.epsilon = d.exploration.Next(d.epsilon)

	if !d.replay.Ready() {
		return nil
	}

	if d.steps%d.updateFreq == 0 {
		if err := d.train(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	if d.steps%d.targetUpdateInterval == 0 {
		if err := d.updateTarget(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	return nil
}

// train performs a single gradient update on a batch of transitions
func (d *DQN) train() error {
	batch, err := d.replay.Sample()
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}

	selected := make([]float64, d.batchSize*d.numActions)
	discounts := make([]float64, d.batchSize)
	for i, a := range batch.Actions {
		selected[i*d.numActions+a] = 1.0
		if !batch.Dones[i] {
			discounts[i] = d.discount * batch.Discounts[i]
		}
	}

	// Predict the action values in the next states
	if err := d.targetNet.SetInput(batch.NextStates); err != nil {
		return fmt.Errorf("train: could not set target net input: %v", err)
	}
	if err := d.targetNetVM.RunAll(); err != nil {
		return fmt.Errorf("train: could not run target net: %v", err)
	}
	nextValues := d.targetNet.Output().(*tensor.Dense).Clone().(*tensor.Dense)
	d.targetNetVM.Reset()

	if err := G.Let(d.nextStateActionValues, nextValues); err != nil {
		return fmt.Errorf("train: could not set next state-action values: "+
			"%v", err)
	}
	if err := G.Let(d.selectedActions, tensor.New(
		tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(selected),
	)); err != nil {
		return fmt.Errorf("train: could not set actions: %v", err)
	}
	if err := G.Let(d.rewards, tensor.New(
		tensor.WithShape(d.batchSize),
		tensor.WithBacking(batch.Rewards),
	)); err != nil {
		return fmt.Errorf("train: could not set rewards: %v", err)
	}
	if err := G.Let(d.discounts, tensor.New(
		tensor.WithShape(d.batchSize),
		tensor.WithBacking(discounts),
	)); err != nil {
		return fmt.Errorf("train: could not set discounts: %v", err)
	}
	if err := d.trainNet.SetInput(batch.States); err != nil {
		return fmt.Errorf("train: could not set train net input: %v", err)
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("train: could not run train net: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("train: could not step solver: %v", err)
	}
	loss := valuesOf(*d.costVal)[0]
	qValues := valuesOf(*d.selectedVal)
	d.trainNetVM.Reset()
	d.updates++

	if err := d.behaviour.Set(d.trainNet); err != nil {
		return fmt.Errorf("train: could not update behaviour network: %v",
			err)
	}

	d.losses = append(d.losses, loss)
	if err := d.recorder.Scalar(LossTag, d.steps, loss); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	if err := d.recorder.Scalar(QValueTag, d.steps,
		stat.Mean(qValues, nil)); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	if err := d.recorder.Histogram(QValuesTag, d.steps, qValues); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	return nil
}

// updateTarget updates the weights of the target network and records
// the mean loss since the last target update
func (d *DQN) updateTarget() error {
	var err error
	if d.tau == 1.0 {
		err = d.targetNet.Set(d.trainNet)
	} else {
		err = d.targetNet.Polyak(d.trainNet, d.tau)
	}
	if err != nil {
		return fmt.Errorf("updateTarget: %v", err)
	}

	if len(d.losses) == 0 {
		return nil
	}
	meanLoss := stat.Mean(d.losses, nil)
	d.losses = d.losses[:0]

	d.logger.Debug("target network updated",
		zap.Int("step", d.steps),
		zap.Int("updates", d.updates),
		zap.Float64("mean_loss", meanLoss),
	)
	if err := d.recorder.Scalar(MeanLossTag, d.steps, meanLoss); err != nil {
		return fmt.Errorf("updateTarget: %v", err)
	}
	return nil
}

// valuesOf returns the data of a scalar or tensor value
func valuesOf(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case float64:
		return []float64{data}
	case []float64:
		return append([]float64(nil), data...)
	}
	panic(fmt.Sprintf("valuesOf: unsupported value type %T", v.Data()))
}

// SelectAction runs the behaviour network and returns the action
// selected by the epsilon greedy behaviour policy. In evaluation mode
// the policy uses the test epsilon.
func (d *DQN) SelectAction(t ts.TimeStep) *mat.VecDense {
	if d.eval {
		d.behaviour.SetEpsilon(d.testEpsilon)
	} else {
		d.behaviour.SetEpsilon(d.epsilon)
	}

	if err := d.predict(t.Observation); err != nil {
		panic(fmt.Sprintf("selectAction: %v", err))
	}
	action, _ := d.behaviour.SelectAction()
	d.behaviourVM.Reset()

	return action
}

// ActionValues returns the predicted values of each action given an
// observation
func (d *DQN) ActionValues(obs *mat.VecDense) ([]float64, error) {
	if err := d.predict(obs); err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}
	values := append([]float64(nil), d.behaviour.ActionValues()...)
	d.behaviourVM.Reset()

	return values, nil
}

// predict runs the behaviour network on an observation
func (d *DQN) predict(obs *mat.VecDense) error {
	if obs == nil {
		return fmt.Errorf("predict: no observation")
	}
	input := make([]float64, obs.Len())
	floats.ScaleTo(input, pixelScale, mat.Col(nil, 0, obs))

	if err := d.behaviour.SetInput(input); err != nil {
		return fmt.Errorf("predict: %v", err)
	}
	if err := d.behaviourVM.RunAll(); err != nil {
		return fmt.Errorf("predict: %v", err)
	}
	return nil
}

// Eval sets the agent into evaluation mode
func (d *DQN) Eval() {
	d.eval = true
}

// Train sets the agent into training mode
func (d *DQN) Train() {
	d.eval = false
}

// IsEval returns whether the agent is in evaluation mode
func (d *DQN) IsEval() bool {
	return d.eval
}

// Epsilon returns the current epsilon of the behaviour policy in
// training mode
func (d *DQN) Epsilon() float64 {
	return d.epsilon
}

// Steps returns the number of environmental steps taken in training
func (d *DQN) Steps() int {
	return d.steps
}

// Updates returns the number of gradient updates performed
func (d *DQN) Updates() int {
	return d.updates
}

// ReplayLen returns the number of transitions in the replay buffer
func (d *DQN) ReplayLen() int {
	return d.replay.Len()
}

// checkpoint stores the learned weights and the learning progress of a
// DQN agent
type checkpoint struct {
	Online  *network.QNet
	Target  *network.QNet
	Steps   int
	Updates int
	Epsilon float64
}

// Save saves the weights and learning progress of the agent. The
// replay buffer is not saved.
func (d *DQN) Save(w io.Writer) error {
	c := checkpoint{
		Online:  d.trainNet,
		Target:  d.targetNet,
		Steps:   d.steps,
		Updates: d.updates,
		Epsilon: d.epsilon,
	}
	if err := gob.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load restores the weights and learning progress of the agent from a
// checkpoint written by Save. The checkpoint must have been saved by an
// agent with the same network architecture.
func (d *DQN) Load(r io.Reader) error {
	var c checkpoint
	if err := gob.NewDecoder(r).Decode(&c); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if c.Online == nil || c.Target == nil {
		return fmt.Errorf("load: checkpoint has no weights")
	}
	if want := d.exploration.At(c.Steps); math.Abs(c.Epsilon-want) > 1e-6 {
		return fmt.Errorf("load: checkpoint epsilon does not follow the "+
			"exploration schedule after %v steps\n\twant(%v)\n\thave(%v)",
			c.Steps, want, c.Epsilon)
	}

	if err := d.trainNet.Set(c.Online); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := d.behaviour.Set(c.Online); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := d.targetNet.Set(c.Target); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	d.steps = c.Steps
	d.updates = c.Updates
	d.epsilon = c.Epsilon
	d.losses = d.losses[:0]
	return nil
}

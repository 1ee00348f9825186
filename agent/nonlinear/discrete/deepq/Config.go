package deepq

import (
	"fmt"

	"github.com/samuelfneumann/godqn/agent"
	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/policy"
	env "github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/initwfn"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/solver"
)

// Config implements a configuration for a DQN agent
type Config struct {
	// Network architecture. Convolutional layers are applied to the
	// stacked frames, followed by hidden layers of size HiddenSizes[i]
	// with activation Activations[i].
	ConvLayers  []network.ConvLayer   `yaml:"ConvLayers"`
	HiddenSizes []int                 `yaml:"HiddenSizes"`
	Activations []*network.Activation `yaml:"Activations"`

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn `yaml:"InitWFn"`

	Solver   *solver.Solver `yaml:"Solver"` // Solver for learning weights
	Discount float64        `yaml:"Discount"`

	// Behaviour policy epsilon schedule, and the epsilon used when
	// evaluating the agent
	Exploration policy.LinearDecay `yaml:"Exploration"`
	TestEpsilon float64            `yaml:"TestEpsilon"`

	ExpReplay expreplay.Config `yaml:"ExpReplay"`

	// Number of steps between gradient updates
	UpdateFreq int `yaml:"UpdateFreq"`

	// Target net updates
	TargetUpdateInterval int     `yaml:"TargetUpdateInterval"` // Steps between updates
	Tau                  float64 `yaml:"Tau"`                  // Polyak averaging constant
}

// DefaultConfig returns the default configuration of a DQN agent on
// Atari games
func DefaultConfig() Config {
	adam, err := solver.NewDefaultAdam(2e-4, 1)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}

	return Config{
		ConvLayers:  network.DefaultConvLayers(),
		HiddenSizes: []int{128},
		Activations: []*network.Activation{network.ReLU()},
		InitWFn:     init,
		Solver:      adam,
		Discount:    0.99,
		Exploration: policy.LinearDecay{Start: 1.0, End: 0.1, Steps: 100_000},
		TestEpsilon: 0.05,
		ExpReplay: expreplay.Config{
			Capacity:  100_000,
			BatchSize: 32,
			MinSize:   10_000,
		},
		UpdateFreq:           2,
		TargetUpdateInterval: 1000,
		Tau:                  1.0,
	}
}

// DefaultCatchConfig returns the default configuration of a DQN agent
// on the Catch game, whose frames are much smaller than Atari frames
func DefaultCatchConfig() Config {
	c := DefaultConfig()
	c.ConvLayers = []network.ConvLayer{
		{Filters: 16, Kernel: 4, Stride: 2},
		{Filters: 32, Kernel: 3, Stride: 1},
	}
	c.HiddenSizes = []int{64}
	c.Exploration = policy.LinearDecay{Start: 1.0, End: 0.05, Steps: 5000}
	c.ExpReplay = expreplay.Config{
		Capacity:  10_000,
		BatchSize: 32,
		MinSize:   500,
	}
	c.TargetUpdateInterval = 200
	return c
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// LearningRate returns the learning rate of the configured solver
func (c Config) LearningRate() float64 {
	if c.Solver == nil {
		return 0
	}
	return c.Solver.LearningRate()
}

// Validate checks a Config to ensure it is a valid configuration of a
// DQN agent.
func (c Config) Validate() error {
	if len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations\n\t"+
			"want(%v)\n\thave(%v)", len(c.HiddenSizes), len(c.Activations))
	}
	for i, act := range c.Activations {
		if act == nil {
			return fmt.Errorf("validate: missing activation %v", i)
		}
	}
	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver")
	}
	if c.InitWFn == nil || c.InitWFn.InitWFn() == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1]\n\t"+
			"have(%v)", c.Discount)
	}
	if err := c.Exploration.Validate(); err != nil {
		return fmt.Errorf("validate: exploration: %v", err)
	}
	if c.TestEpsilon < 0 || c.TestEpsilon > 1 {
		return fmt.Errorf("validate: test epsilon must be in [0, 1]\n\t"+
			"have(%v)", c.TestEpsilon)
	}
	if err := c.ExpReplay.Validate(); err != nil {
		return fmt.Errorf("validate: replay: %v", err)
	}
	if c.UpdateFreq < 1 {
		return fmt.Errorf("validate: networks must be updated at positive "+
			"timestep intervals\n\twant(>0)\n\thave(%v)", c.UpdateFreq)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: target networks must be updated at "+
			"positive timestep intervals\n\twant(>0)\n\thave(%v)",
			c.TargetUpdateInterval)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in (0, 1]\n\thave(%v)",
			c.Tau)
	}
	return nil
}

var _ agent.Config = Config{}

// CreateAgent creates a new DQN agent based on the configuration
func (c Config) CreateAgent(e env.Environment, seed uint64) (agent.Agent,
	error) {
	return New(e, c, seed)
}

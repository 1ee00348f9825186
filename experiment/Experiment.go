// Package experiment implements functionality for running an experiment:
// training an agent online while periodically evaluating it on a
// separate test environment.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/godqn/environment/envconfig"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/summary"
	"gopkg.in/yaml.v3"
)

// Config represents a configuration of an experiment. Configs can be
// read from JSON or YAML files with Load.
type Config struct {
	Env   envconfig.Config `yaml:"Env"`
	Agent deepq.Config     `yaml:"Agent"`

	NumEpochs     int `yaml:"NumEpochs"`     // Training episodes
	TestFrequency int `yaml:"TestFrequency"` // Episodes between evaluations
	TestGames     int `yaml:"TestGames"`     // Games per evaluation

	// Summaries are recorded under LogDir/<env>/<run name>
	LogDir string `yaml:"LogDir"`

	// Every VideoEvery-th test game is recorded to VideoDir if VideoDir
	// is not empty
	VideoDir   string `yaml:"VideoDir"`
	VideoEvery int    `yaml:"VideoEvery"`

	// Episodes between agent checkpoints, 0 disables checkpointing
	CheckpointEvery int `yaml:"CheckpointEvery"`

	Seed uint64 `yaml:"Seed"`
}

// DefaultConfig returns the default configuration of a DQN experiment
// on Pong
func DefaultConfig() Config {
	return Config{
		Env:           envconfig.Default("PongNoFrameskip-v4"),
		Agent:         deepq.DefaultConfig(),
		NumEpochs:     2000,
		TestFrequency: 20,
		TestGames:     10,
		LogDir:        "log_dir",
		VideoDir:      "VIDEOS",
		VideoEvery:    20,
	}
}

// DefaultCatchConfig returns the default configuration of a DQN
// experiment on the Catch game. Videos are not recorded.
func DefaultCatchConfig() Config {
	c := DefaultConfig()
	c.Env = envconfig.DefaultCatch()
	c.Agent = deepq.DefaultCatchConfig()
	c.NumEpochs = 1000
	c.VideoDir = ""
	return c
}

// Load loads a Config from a JSON (.json) or YAML (.yaml, .yml) file.
// Fields missing from the file keep their values in DefaultConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	c := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		return Config{}, fmt.Errorf("load: unknown config file type %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load: could not decode %v: %v", path,
			err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// Validate returns an error if the Config is not valid
func (c Config) Validate() error {
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("validate: env: %v", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("validate: agent: %v", err)
	}
	if err := network.CheckConvLayers(c.Agent.ConvLayers, c.Env.Height,
		c.Env.Width); err != nil {
		return fmt.Errorf("validate: agent does not fit %vx%v frames of "+
			"%v: %v", c.Env.Width, c.Env.Height, c.Env, err)
	}
	if c.NumEpochs < 1 {
		return fmt.Errorf("validate: NumEpochs must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.NumEpochs)
	}
	if c.TestFrequency < 1 {
		return fmt.Errorf("validate: TestFrequency must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.TestFrequency)
	}
	if c.TestGames < 1 {
		return fmt.Errorf("validate: TestGames must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.TestGames)
	}
	if c.VideoDir != "" && c.VideoEvery < 1 {
		return fmt.Errorf("validate: VideoEvery must be positive when "+
			"recording\n\twant(>0)\n\thave(%v)", c.VideoEvery)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("validate: CheckpointEvery cannot be negative\n\t"+
			"have(%v)", c.CheckpointEvery)
	}
	return nil
}

// Hyperparameters returns the hyperparameters used to name the run
func (c Config) Hyperparameters() summary.Hyperparameters {
	return summary.Hyperparameters{
		LearningRate:         c.Agent.LearningRate(),
		TargetUpdateInterval: c.Agent.TargetUpdateInterval,
		UpdateFreq:           c.Agent.UpdateFreq,
		Frames:               c.Env.FramesNum,
	}
}

// Package envconfig provides configuration structs for configuring
// Atari-style environments together with their preprocessing wrappers.
// Environment configurations in this package are JSON and YAML
// serializable.
//
// OpenAI Gym environments are only available in binaries built with
// the gym build tag. Catch environments are always available.
package envconfig

import (
	"fmt"
	"path/filepath"

	env "github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/catch"
	"github.com/samuelfneumann/godqn/environment/wrappers"
	ts "github.com/samuelfneumann/godqn/timestep"
)

// Dimensions of the raw frames of Atari games
const (
	AtariHeight = 210
	AtariWidth  = 160
)

// newGym creates a gym environment. It is nil unless built with the gym
// build tag.
var newGym func(c Config, height, width int,
	seed uint64) (env.Environment, error)

// shutdown finalizes the gym runtime
var shutdown = func() {}

// Shutdown releases the resources held by the OpenAI Gym runtime. It
// should be called once all gym environments have been closed.
func Shutdown() {
	shutdown()
}

// Kind stores the kind of base environment to create
type Kind string

// Kinds of environments that can be configured with this package
const (
	Gym   Kind = "gym"
	Catch Kind = "catch"
)

// Config describes a base environment and the preprocessing applied
// to its frames.
type Config struct {
	Kind Kind   `yaml:"Kind"`
	Name string `yaml:"Name"` // OpenAI Gym name, e.g. PongNoFrameskip-v4

	FramesNum   int  `yaml:"FramesNum"`   // Number of stacked frames
	SkipFrames  bool `yaml:"SkipFrames"`  // Whether to use MaxAndSkip
	Skip        int  `yaml:"Skip"`        // Frames per action if skipping
	NoopMax     int  `yaml:"NoopMax"`     // Max no-ops on reset, 0 disables
	FireReset   bool `yaml:"FireReset"`   // Press FIRE on reset
	ClipRewards bool `yaml:"ClipRewards"` // Clip rewards to their sign

	// Size of the warped frames given to the agent
	Width  int `yaml:"Width"`
	Height int `yaml:"Height"`

	// Size of the raw gym frames
	FrameHeight int `yaml:"FrameHeight"`
	FrameWidth  int `yaml:"FrameWidth"`

	CatchRows  int `yaml:"CatchRows"`
	CatchCols  int `yaml:"CatchCols"`
	CatchScale int `yaml:"CatchScale"`

	Discount float64 `yaml:"Discount"`
}

// Default returns the default configuration of the gym environment
// with the given name
func Default(name string) Config {
	return Config{
		Kind:        Gym,
		Name:        name,
		FramesNum:   2,
		SkipFrames:  true,
		Skip:        4,
		NoopMax:     20,
		Width:       wrappers.DefaultWarpWidth,
		Height:      wrappers.DefaultWarpHeight,
		FrameHeight: AtariHeight,
		FrameWidth:  AtariWidth,
		Discount:    1.0,
	}
}

// DefaultCatch returns a default configuration of the Catch
// environment, which is small enough to train on quickly
func DefaultCatch() Config {
	return Config{
		Kind:       Catch,
		Name:       "Catch",
		FramesNum:  2,
		Width:      20,
		Height:     20,
		CatchRows:  10,
		CatchCols:  5,
		CatchScale: 4,
		Discount:   1.0,
	}
}

// Validate returns an error if the Config is not valid
func (c Config) Validate() error {
	if c.Kind != Gym && c.Kind != Catch {
		return fmt.Errorf("validate: no such environment kind %q", c.Kind)
	}
	if c.Kind == Gym && c.Name == "" {
		return fmt.Errorf("validate: gym environments must be named")
	}
	if c.FramesNum < 1 {
		return fmt.Errorf("validate: FramesNum must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.FramesNum)
	}
	if c.SkipFrames && c.Skip < 1 {
		return fmt.Errorf("validate: Skip must be positive when skipping "+
			"frames\n\twant(>0)\n\thave(%v)", c.Skip)
	}
	if c.NoopMax < 0 {
		return fmt.Errorf("validate: NoopMax cannot be negative\n\t"+
			"have(%v)", c.NoopMax)
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("validate: invalid frame size %vx%v", c.Width,
			c.Height)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1]\n\t"+
			"have(%v)", c.Discount)
	}
	return nil
}

// String returns the name of the configured environment, which is
// used to name log directories
func (c Config) String() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.Kind)
}

// CreateEnv returns the environment described by the Config as well as
// the first timestep of the environment. If videoDir is not empty, every
// videoEvery-th episode of the base environment is recorded to videoDir.
//
// The wrappers are applied in the following order:
//
//	base -> [Monitor] -> [NoopReset] -> [FireReset] -> [MaxAndSkip] ->
//	WarpFrame -> [ClipReward] -> FrameStack
func (c Config) CreateEnv(seed uint64, videoDir string,
	videoEvery int) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createEnv: %v", err)
	}

	e, err := c.base(seed)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("createEnv: %v", err)
	}

	wrapped, step, err := c.wrap(e, seed, videoDir, videoEvery)
	if err != nil {
		e.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("createEnv: %v", err)
	}
	return wrapped, step, nil
}

// base creates the unwrapped environment
func (c Config) base(seed uint64) (env.Environment, error) {
	switch c.Kind {
	case Gym:
		height, width := c.FrameHeight, c.FrameWidth
		if height == 0 || width == 0 {
			height, width = AtariHeight, AtariWidth
		}
		if newGym == nil {
			return nil, fmt.Errorf("base: gym environments are not "+
				"available, rebuild with -tags gym to use %v", c.Name)
		}
		return newGym(c, height, width, seed)

	case Catch:
		e, _, err := catch.New(c.CatchRows, c.CatchCols, c.CatchScale,
			c.Discount, seed)
		return e, err
	}

	return nil, fmt.Errorf("base: no such environment kind %q", c.Kind)
}

// wrap applies the preprocessing wrappers to e
func (c Config) wrap(e env.Environment, seed uint64, videoDir string,
	videoEvery int) (env.Environment, ts.TimeStep, error) {
	var err error

	// The monitor is paused while the other wrappers reset the
	// environment during construction
	var monitor *wrappers.Monitor
	if videoDir != "" {
		dir := filepath.Join(videoDir, c.String())
		if monitor, _, err = wrappers.NewMonitor(e, dir, videoEvery); err != nil {
			return nil, ts.TimeStep{}, err
		}
		monitor.Pause()
		e = monitor
	}

	if c.NoopMax > 0 {
		if e, _, err = wrappers.NewNoopReset(e, c.NoopMax, seed); err != nil {
			return nil, ts.TimeStep{}, err
		}
	}

	if c.FireReset {
		if e, _, err = wrappers.NewFireReset(e); err != nil {
			return nil, ts.TimeStep{}, err
		}
	}

	if c.SkipFrames {
		if e, _, err = wrappers.NewMaxAndSkip(e, c.Skip); err != nil {
			return nil, ts.TimeStep{}, err
		}
	}

	if e, _, err = wrappers.NewWarpFrame(e, c.Width, c.Height); err != nil {
		return nil, ts.TimeStep{}, err
	}

	if c.ClipRewards {
		e = wrappers.NewClipReward(e)
	}

	stacked, step, err := wrappers.NewFrameStack(e, c.FramesNum)
	if err != nil {
		return nil, ts.TimeStep{}, err
	}

	if monitor != nil {
		monitor.Resume()
	}
	return stacked, step, nil
}

package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samuelfneumann/godqn/agent"
	env "github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/experiment/checkpointer"
	"github.com/samuelfneumann/godqn/experiment/tracker"
	"github.com/samuelfneumann/godqn/summary"
	ts "github.com/samuelfneumann/godqn/timestep"
	"github.com/samuelfneumann/godqn/utils/progressbar"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// TestRewardTag is the tag of the mean return of each evaluation
const TestRewardTag = "test_rew"

// Online is an experiment that trains an agent online, one episode at
// a time. Every TestFrequency episodes, starting with the first, the
// agent is evaluated on a separate test environment.
type Online struct {
	env     env.Environment
	testEnv env.Environment
	agent   agent.Agent

	numEpochs     int
	testFrequency int
	testGames     int

	trackers     []tracker.Tracker
	checkpointer checkpointer.Checkpointer
	recorder     summary.Recorder
	logger       *zap.Logger
	progress     *progressbar.ProgressBar

	steps int // Training steps taken
}

// Option configures an Online experiment
type Option func(*Online)

// WithTrackers registers trackers which track the timesteps of the
// training environment
func WithTrackers(t ...tracker.Tracker) Option {
	return func(o *Online) { o.trackers = append(o.trackers, t...) }
}

// WithCheckpointer checkpoints the agent at the end of each episode
func WithCheckpointer(c checkpointer.Checkpointer) Option {
	return func(o *Online) { o.checkpointer = c }
}

// WithRecorder records evaluation summaries to r
func WithRecorder(r summary.Recorder) Option {
	return func(o *Online) { o.recorder = r }
}

// WithLogger logs evaluation results to l
func WithLogger(l *zap.Logger) Option {
	return func(o *Online) { o.logger = l }
}

// WithProgressBar increments p at the end of each episode
func WithProgressBar(p *progressbar.ProgressBar) Option {
	return func(o *Online) { o.progress = p }
}

// NewOnline creates and returns a new online experiment which trains a
// on e for numEpochs episodes. Every testFrequency episodes, a is
// evaluated for testGames games on testEnv.
func NewOnline(e, testEnv env.Environment, a agent.Agent, numEpochs,
	testFrequency, testGames int, opts ...Option) (*Online, error) {
	if numEpochs < 1 || testFrequency < 1 || testGames < 1 {
		return nil, fmt.Errorf("newOnline: epochs, test frequency, and test "+
			"games must be positive\n\thave(%v, %v, %v)", numEpochs,
			testFrequency, testGames)
	}

	o := &Online{
		env:           e,
		testEnv:       testEnv,
		agent:         a,
		numEpochs:     numEpochs,
		testFrequency: testFrequency,
		testGames:     testGames,
		recorder:      summary.NewNop(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// CreateOnline creates the training and test environments and the
// agent described by the Config and returns an Online experiment
// running them. The agent records its summaries to recorder. If
// checkpointing is enabled, checkpoints are saved in runDir.
func (c Config) CreateOnline(runDir string, recorder summary.Recorder,
	logger *zap.Logger, opts ...Option) (*Online, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createOnline: %v", err)
	}

	e, _, err := c.Env.CreateEnv(c.Seed, "", 0)
	if err != nil {
		return nil, fmt.Errorf("createOnline: %v", err)
	}
	testEnv, _, err := c.Env.CreateEnv(c.Seed+1, c.VideoDir, c.VideoEvery)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("createOnline: could not create test "+
			"environment: %v", err)
	}

	a, err := c.Agent.CreateAgent(e, c.Seed)
	if err != nil {
		e.Close()
		testEnv.Close()
		return nil, fmt.Errorf("createOnline: %v", err)
	}
	if r, ok := a.(interface{ SetRecorder(summary.Recorder) }); ok {
		r.SetRecorder(recorder)
	}
	if l, ok := a.(interface{ SetLogger(*zap.Logger) }); ok {
		l.SetLogger(logger)
	}

	opts = append([]Option{WithRecorder(recorder), WithLogger(logger)},
		opts...)
	if saver, ok := a.(checkpointer.Saver); ok && c.CheckpointEvery > 0 {
		check, err := checkpointer.NewNEpisode(c.CheckpointEvery, saver,
			checkpointer.FilenameEnumerator(0,
				filepath.Join(runDir, "checkpoint-"), ".gob"))
		if err != nil {
			e.Close()
			testEnv.Close()
			return nil, fmt.Errorf("createOnline: %v", err)
		}
		opts = append(opts, WithCheckpointer(check))
	}

	return NewOnline(e, testEnv, a, c.NumEpochs, c.TestFrequency,
		c.TestGames, opts...)
}

// Agent returns the agent trained by the experiment
func (o *Online) Agent() agent.Agent {
	return o.agent
}

// Steps returns the number of training steps taken
func (o *Online) Steps() int {
	return o.steps
}

// Run runs the entire experiment. Run returns the context's error if
// the context is cancelled before the experiment has finished.
func (o *Online) Run(ctx context.Context) error {
	var batchReturns []float64

	for ep := 0; ep < o.numEpochs; ep++ {
		ret, err := o.RunEpisode(ctx)
		if err != nil {
			return fmt.Errorf("run: episode %v: %w", ep, err)
		}
		batchReturns = append(batchReturns, ret)

		if ep%o.testFrequency == 0 {
			if err := o.test(ctx, ep, batchReturns); err != nil {
				return fmt.Errorf("run: episode %v: %w", ep, err)
			}
			batchReturns = batchReturns[:0]
		}

		if o.checkpointer != nil {
			if err := o.checkpointer.Checkpoint(ep); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}
		if o.progress != nil {
			o.progress.Increment()
		}
	}
	return nil
}

// RunEpisode runs a single training episode and returns its return
func (o *Online) RunEpisode(ctx context.Context) (float64, error) {
	step, err := o.env.Reset()
	if err != nil {
		return 0, fmt.Errorf("runEpisode: %v", err)
	}
	if err := o.agent.ObserveFirst(step); err != nil {
		return 0, fmt.Errorf("runEpisode: %v", err)
	}
	if err := o.track(step); err != nil {
		return 0, fmt.Errorf("runEpisode: %v", err)
	}

	ret := 0.0
	for done := false; !done; {
		if err := ctx.Err(); err != nil {
			return ret, err
		}

		// Select action, step in environment
		action := o.agent.SelectAction(step)
		if step, done, err = o.env.Step(action); err != nil {
			return ret, fmt.Errorf("runEpisode: %v", err)
		}
		ret += step.Reward
		o.steps++

		if err := o.track(step); err != nil {
			return ret, fmt.Errorf("runEpisode: %v", err)
		}

		// Observe the timestep and step the agent
		if err := o.agent.Observe(action, step); err != nil {
			return ret, fmt.Errorf("runEpisode: %v", err)
		}
		if err := o.agent.Step(); err != nil {
			return ret, fmt.Errorf("runEpisode: %v", err)
		}
	}

	o.agent.EndEpisode()
	return ret, nil
}

// test evaluates the agent, recording and logging the results together
// with the mean return of the training episodes since the last test
func (o *Online) test(ctx context.Context, ep int,
	batchReturns []float64) error {
	returns, err := Evaluate(ctx, o.testEnv, o.agent, o.testGames)
	if err != nil {
		return err
	}
	testMean, testStd := stat.PopMeanStdDev(returns, nil)

	if err := o.recorder.Scalar(TestRewardTag, o.steps, testMean); err != nil {
		return fmt.Errorf("test: %v", err)
	}

	fields := []zap.Field{
		zap.Int("episode", ep),
		zap.Float64("reward", stat.Mean(batchReturns, nil)),
		zap.Int("step", o.steps),
		zap.Float64("test_mean", testMean),
		zap.Float64("test_std", testStd),
	}
	if e, ok := o.agent.(interface{ Epsilon() float64 }); ok {
		fields = append(fields, zap.Float64("epsilon", e.Epsilon()))
	}
	o.logger.Info("evaluation", fields...)

	return nil
}

// Save saves all the data cached by the trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// Close closes the training and test environments
func (o *Online) Close() error {
	err := o.env.Close()
	if testErr := o.testEnv.Close(); err == nil {
		err = testErr
	}
	return err
}

// track tracks the current timestep by caching its data in each tracker
func (o *Online) track(t ts.TimeStep) error {
	for _, tr := range o.trackers {
		if err := tr.Track(t); err != nil {
			return err
		}
	}
	return nil
}

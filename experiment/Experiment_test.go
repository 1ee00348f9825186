package experiment

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/godqn/environment/envconfig"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/experiment/trackers"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/summary"
	"github.com/samuelfneumann/godqn/utils/progressbar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// testConfig returns a small experiment on Catch, where each episode
// lasts 4 steps
func testConfig(t *testing.T) Config {
	t.Helper()
	c := DefaultConfig()

	c.Env = envconfig.DefaultCatch()
	c.Env.CatchRows = 5

	c.Agent.ConvLayers = []network.ConvLayer{{Filters: 4, Kernel: 4, Stride: 2}}
	c.Agent.HiddenSizes = []int{8}
	c.Agent.Activations = []*network.Activation{network.ReLU()}
	c.Agent.Exploration = policy.LinearDecay{Start: 1, End: 0.1, Steps: 50}
	c.Agent.ExpReplay = expreplay.Config{
		Capacity:  200,
		BatchSize: 4,
		MinSize:   10,
	}
	c.Agent.TargetUpdateInterval = 10

	c.NumEpochs = 6
	c.TestFrequency = 2
	c.TestGames = 2
	c.LogDir = t.TempDir()
	c.VideoDir = ""
	c.Seed = 11
	return c
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 2000, c.NumEpochs)
	assert.Equal(t, 20, c.TestFrequency)
	assert.Equal(t, 10, c.TestGames)
	assert.Equal(t, "PongNoFrameskip-v4", c.Env.Name)

	assert.Equal(t, summary.Hyperparameters{
		LearningRate:         2e-4,
		TargetUpdateInterval: 1000,
		UpdateFreq:           2,
		Frames:               2,
	}, c.Hyperparameters())
}

func TestDefaultCatchConfig(t *testing.T) {
	c := DefaultCatchConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, envconfig.Catch, c.Env.Kind)
	assert.Empty(t, c.VideoDir)

	// The Atari convolutions do not fit Catch frames
	c.Agent.ConvLayers = network.DefaultConvLayers()
	assert.ErrorContains(t, c.Validate(), "does not fit")

	e, _, err := c.Env.CreateEnv(1, "", 0)
	require.NoError(t, err)
	defer e.Close()
	_, err = DefaultCatchConfig().Agent.CreateAgent(e, 1)
	assert.NoError(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
Env:
  Kind: catch
  Name: Catch
  CatchRows: 8
  CatchCols: 5
  CatchScale: 2
  Width: 16
  Height: 16
NumEpochs: 3
Agent:
  ConvLayers:
    - {Filters: 8, Kernel: 4, Stride: 2}
  HiddenSizes: [16]
  Activations: [relu]
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, envconfig.Catch, c.Env.Kind)
	assert.Equal(t, 8, c.Env.CatchRows)
	assert.Equal(t, 3, c.NumEpochs)
	assert.Equal(t, []int{16}, c.Agent.HiddenSizes)

	// Missing fields keep their default values
	assert.Equal(t, 2e-4, c.Agent.LearningRate())
	assert.Equal(t, 10, c.TestGames)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"NumEpochs": 5,
		"Agent": {"Solver": {"Type": "Vanilla", "Config": {"StepSize": 0.01}}}
	}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.NumEpochs)
	assert.Equal(t, 0.01, c.Agent.LearningRate())
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txt, []byte("NumEpochs: 1"), 0o644))
	_, err = Load(txt)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("NumEpochs: 0"), 0o644))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestOnlineRun(t *testing.T) {
	c := testConfig(t)
	c.CheckpointEvery = 3
	c.VideoDir = filepath.Join(t.TempDir(), "videos")
	c.VideoEvery = 2
	runDir := t.TempDir()

	rec, err := summary.NewSQLite(runDir)
	require.NoError(t, err)
	defer rec.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	returns := trackers.NewReturn(filepath.Join(runDir, "returns.bin"))
	lengths := trackers.NewEpisodeLength(filepath.Join(runDir, "lengths.bin"))
	progress := progressbar.NewProgressBar(io.Discard, 10, c.NumEpochs,
		time.Hour)

	o, err := c.CreateOnline(runDir, rec, zap.New(core),
		WithTrackers(returns, lengths), WithProgressBar(progress))
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Run(context.Background()))
	require.NoError(t, progress.Close())
	assert.Equal(t, 6, progress.Progress())

	assert.Equal(t, 24, o.Steps())
	assert.Equal(t, []int{4, 4, 4, 4, 4, 4}, lengths.Data())
	require.Len(t, returns.Data(), 6)
	for _, r := range returns.Data() {
		assert.Contains(t, []float64{-1, 1}, r)
	}
	require.NoError(t, o.Save())
	assert.FileExists(t, filepath.Join(runDir, "returns.bin"))

	// Evaluations after episodes 0, 2, and 4
	testRew, err := rec.Scalars(TestRewardTag)
	require.NoError(t, err)
	require.Len(t, testRew, 3)
	assert.Equal(t, 4, testRew[0].Step)
	assert.Equal(t, 3, logs.FilterMessage("evaluation").Len())

	// The agent records its updates
	loss, err := rec.Scalars(deepq.LossTag)
	require.NoError(t, err)
	assert.NotEmpty(t, loss)

	assert.FileExists(t, filepath.Join(runDir, "checkpoint-1.gob"))
	assert.FileExists(t, filepath.Join(runDir, "checkpoint-2.gob"))

	// Test games 0, 2, and 4 of the 6 test games are recorded
	videos := filepath.Join(c.VideoDir, c.Env.String())
	assert.DirExists(t, filepath.Join(videos, "episode-000000"))
	assert.DirExists(t, filepath.Join(videos, "episode-000004"))
	assert.NoDirExists(t, filepath.Join(videos, "episode-000001"))
	assert.NoDirExists(t, filepath.Join(videos, "episode-000006"))
}

func TestOnlineCancelled(t *testing.T) {
	c := testConfig(t)
	o, err := c.CreateOnline(t.TempDir(), summary.NewNop(), zap.NewNop())
	require.NoError(t, err)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = o.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, o.Steps())
}

func TestEvaluate(t *testing.T) {
	c := testConfig(t)
	e, _, err := c.Env.CreateEnv(3, "", 0)
	require.NoError(t, err)
	defer e.Close()

	a, err := c.Agent.CreateAgent(e, 3)
	require.NoError(t, err)

	returns, err := Evaluate(context.Background(), e, a, 5)
	require.NoError(t, err)
	require.Len(t, returns, 5)
	for _, r := range returns {
		assert.Contains(t, []float64{-1, 1}, r)
	}
	assert.False(t, a.IsEval())

	a.Eval()
	_, err = Evaluate(context.Background(), e, a, 1)
	require.NoError(t, err)
	assert.True(t, a.IsEval())
}

func TestNewOnlineInvalid(t *testing.T) {
	c := testConfig(t)
	e, _, err := c.Env.CreateEnv(3, "", 0)
	require.NoError(t, err)
	defer e.Close()
	a, err := c.Agent.CreateAgent(e, 3)
	require.NoError(t, err)

	_, err = NewOnline(e, e, a, 0, 1, 1)
	assert.Error(t, err)
	_, err = NewOnline(e, e, a, 1, 0, 1)
	assert.Error(t, err)
}

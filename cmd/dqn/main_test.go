package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/godqn/environment/envconfig"
	"github.com/samuelfneumann/godqn/experiment"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catchConfig = `
Env:
  Kind: catch
  Name: Catch
  FramesNum: 2
  Width: 20
  Height: 20
  CatchRows: 5
  CatchCols: 5
  CatchScale: 4
  Discount: 1.0
  SkipFrames: false
  NoopMax: 0
Agent:
  ConvLayers:
    - {Filters: 4, Kernel: 4, Stride: 2}
  HiddenSizes: [8]
  Activations: [relu]
  ExpReplay: {Capacity: 100, BatchSize: 4, MinSize: 10}
  Exploration: {Start: 1.0, End: 0.1, Steps: 20}
  TargetUpdateInterval: 10
NumEpochs: 4
TestFrequency: 2
TestGames: 2
VideoDir: ""
Seed: 3
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catchConfig), 0o644))
	return path
}

// resetFlags restores the flags of every command to their defaults so
// that flags set by one execution do not leak into the next
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoadConfigFlags(t *testing.T) {
	configPath = writeConfig(t)
	defer func() { configPath = "" }()

	cmd := &cobra.Command{Use: "train"}
	cmd.Flags().StringVarP(&envName, "env", "e", "", "")
	cmd.Flags().IntVarP(&epochs, "epochs", "n", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{"--epochs", "7"}))

	c, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 7, c.NumEpochs)
	assert.Equal(t, envconfig.Catch, c.Env.Kind)
	assert.Equal(t, 5, c.Env.CatchRows)

	require.NoError(t, cmd.ParseFlags([]string{"--env", "BreakoutNoFrameskip-v4"}))
	c, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, envconfig.Gym, c.Env.Kind)
	assert.Equal(t, "BreakoutNoFrameskip-v4", c.Env.Name)
}

func TestTrainCatchWithoutConfig(t *testing.T) {
	logs := t.TempDir()
	_, err := execute(t, "train", "--env", "catch", "-n", "2", "--logdir",
		logs)
	require.NoError(t, err)

	runs, err := filepath.Glob(filepath.Join(logs, "Catch", "DQN_*"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.FileExists(t, filepath.Join(runs[0], "agent.gob"))
}

func TestTrainEvalSummary(t *testing.T) {
	config := writeConfig(t)
	logs := t.TempDir()

	_, err := execute(t, "train", "-c", config, "--logdir", logs)
	require.NoError(t, err)

	runs, err := filepath.Glob(filepath.Join(logs, "Catch", "DQN_*"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Contains(t, filepath.Base(run), "-upTN_10-upF_2-frms_2")
	assert.FileExists(t, filepath.Join(run, "agent.gob"))
	assert.FileExists(t, filepath.Join(run, "returns.bin"))

	out, err := execute(t, "summary", run)
	require.NoError(t, err)
	assert.Contains(t, strings.Fields(out), experiment.TestRewardTag)

	out, err = execute(t, "summary", run, "--tag", experiment.TestRewardTag)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3) // Header and evaluations after episodes 0 and 2

	_, err = execute(t, "eval", "-c", config, "--checkpoint",
		filepath.Join(run, "agent.gob"), "-g", "2")
	require.NoError(t, err)

	_, err = execute(t, "eval", "-c", config, "--checkpoint",
		filepath.Join(run, "missing.gob"))
	assert.Error(t, err)
}

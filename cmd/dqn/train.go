package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/samuelfneumann/godqn/agent"
	"github.com/samuelfneumann/godqn/environment/envconfig"
	"github.com/samuelfneumann/godqn/experiment"
	"github.com/samuelfneumann/godqn/experiment/trackers"
	"github.com/samuelfneumann/godqn/summary"
	"github.com/samuelfneumann/godqn/utils/progressbar"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envName      string
	epochs       int
	logDir       string
	seed         uint64
	videoEvery   int
	showProgress bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a DQN agent",
	Long: `Train a DQN agent online, evaluating it on a separate test
environment every TestFrequency episodes. Use --env catch to train on
the Catch game, which needs no gym installation. Without a config
file, --env catch also selects a network that fits the Catch frames.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&envName, "env", "e", "",
		"Environment name, e.g. PongNoFrameskip-v4 or catch")
	trainCmd.Flags().IntVarP(&epochs, "epochs", "n", 0,
		"Number of training episodes")
	trainCmd.Flags().StringVar(&logDir, "logdir", "",
		"Directory in which run directories are created")
	trainCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed")
	trainCmd.Flags().IntVar(&videoEvery, "video-every", 0,
		"Record every n-th test game, 0 disables recording")
	trainCmd.Flags().BoolVarP(&showProgress, "progress", "p", false,
		"Display a progress bar")
}

// loadConfig loads the experiment config and applies the flags which
// were set on cmd
func loadConfig(cmd *cobra.Command) (experiment.Config, error) {
	c := experiment.DefaultConfig()
	if configPath != "" {
		var err error
		if c, err = experiment.Load(configPath); err != nil {
			return experiment.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		switch {
		case strings.EqualFold(envName, string(envconfig.Catch)) &&
			configPath == "":
			c = experiment.DefaultCatchConfig()
		case strings.EqualFold(envName, string(envconfig.Catch)):
			c.Env = envconfig.DefaultCatch()
		case c.Env.Kind == envconfig.Gym:
			c.Env.Name = envName
		default:
			c.Env = envconfig.Default(envName)
		}
	}
	if flags.Changed("epochs") {
		c.NumEpochs = epochs
	}
	if flags.Changed("logdir") {
		c.LogDir = logDir
	}
	if flags.Changed("seed") {
		c.Seed = seed
	}
	if flags.Changed("video-every") {
		c.VideoEvery = videoEvery
		if videoEvery == 0 {
			c.VideoDir = ""
		}
	}

	return c, c.Validate()
}

func runTrain(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer envconfig.Shutdown()

	runDir := summary.RunDir(c.LogDir, c.Env.String(), time.Now(),
		c.Hyperparameters())
	recorder, err := summary.NewSQLite(runDir)
	if err != nil {
		return err
	}
	defer recorder.Close()

	opts := []experiment.Option{
		experiment.WithTrackers(
			trackers.NewReturn(filepath.Join(runDir, "returns.bin")),
			trackers.NewEpisodeLength(filepath.Join(runDir, "lengths.bin")),
		),
	}
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewProgressBar(os.Stderr, 40, c.NumEpochs,
			time.Second)
		opts = append(opts, experiment.WithProgressBar(bar))
	}

	online, err := c.CreateOnline(runDir, recorder, logger, opts...)
	if err != nil {
		return err
	}
	defer online.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	logger.Info("training",
		zap.String("run", runDir),
		zap.String("id", recorder.RunID()),
		zap.String("env", c.Env.String()),
		zap.Int("epochs", c.NumEpochs),
		zap.Uint64("seed", c.Seed),
	)

	if bar != nil {
		bar.Display()
	}
	runErr := online.Run(ctx)
	if bar != nil {
		bar.Close()
	}
	if runErr != nil {
		logger.Warn("training stopped", zap.Error(runErr))
	}

	if err := online.Save(); err != nil {
		return err
	}
	if err := saveAgent(filepath.Join(runDir, "agent.gob"),
		online.Agent()); err != nil {
		return err
	}
	logger.Info("saved run", zap.String("run", runDir),
		zap.Int("steps", online.Steps()))

	return runErr
}

// saveAgent saves the final agent to filename
func saveAgent(filename string, a agent.Agent) error {
	saver, ok := a.(agent.Saver)
	if !ok {
		return nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("saveAgent: %v", err)
	}
	if err := saver.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("saveAgent: %v", err)
	}
	return f.Close()
}

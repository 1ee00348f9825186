package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samuelfneumann/godqn/agent"
	"github.com/samuelfneumann/godqn/environment/envconfig"
	"github.com/samuelfneumann/godqn/experiment"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

var (
	checkpoint string
	games      int
	videoDir   string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a saved DQN agent",
	Long: `Evaluate an agent saved during training by playing games with
the agent's test epsilon. The agent must have been trained with the
same environment and agent config.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&checkpoint, "checkpoint", "",
		"Saved agent to evaluate")
	evalCmd.Flags().IntVarP(&games, "games", "g", 10,
		"Number of games to play")
	evalCmd.Flags().StringVar(&videoDir, "video-dir", "",
		"Record every game to this directory")
	_ = evalCmd.MarkFlagRequired("checkpoint")
}

func runEval(cmd *cobra.Command, args []string) error {
	if games < 1 {
		return fmt.Errorf("games must be positive, got %v", games)
	}
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer envconfig.Shutdown()

	e, _, err := c.Env.CreateEnv(c.Seed, videoDir, 1)
	if err != nil {
		return err
	}
	defer e.Close()

	a, err := c.Agent.CreateAgent(e, c.Seed)
	if err != nil {
		return err
	}
	if err := loadAgent(checkpoint, a); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	returns, err := experiment.Evaluate(ctx, e, a, games)
	if err != nil {
		return err
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	logger.Info("evaluation",
		zap.String("checkpoint", checkpoint),
		zap.Int("games", len(returns)),
		zap.Float64s("returns", returns),
		zap.Float64("test_mean", mean),
		zap.Float64("test_std", std),
	)
	return nil
}

// loadAgent restores the agent saved in filename into a
func loadAgent(filename string, a agent.Agent) error {
	saver, ok := a.(agent.Saver)
	if !ok {
		return fmt.Errorf("loadAgent: agent cannot be loaded")
	}

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("loadAgent: %v", err)
	}
	defer f.Close()

	if err := saver.Load(f); err != nil {
		return fmt.Errorf("loadAgent: %v", err)
	}
	return nil
}

package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/godqn/agent"
	"github.com/samuelfneumann/godqn/environment"
)

// Evaluate plays games episodes on env with the agent in evaluation
// mode and returns the return of each game. The agent does not observe
// the games, so Evaluate can safely be called between training
// episodes. The agent is returned to its previous mode afterwards.
func Evaluate(ctx context.Context, env environment.Environment,
	a agent.Agent, games int) ([]float64, error) {
	if !a.IsEval() {
		a.Eval()
		defer a.Train()
	}

	returns := make([]float64, 0, games)
	for game := 0; game < games; game++ {
		step, err := env.Reset()
		if err != nil {
			return returns, fmt.Errorf("evaluate: %v", err)
		}

		ret := 0.0
		for done := false; !done; {
			if err := ctx.Err(); err != nil {
				return returns, err
			}

			action := a.SelectAction(step)
			if step, done, err = env.Step(action); err != nil {
				return returns, fmt.Errorf("evaluate: %v", err)
			}
			ret += step.Reward
		}
		returns = append(returns, ret)
	}

	return returns, nil
}

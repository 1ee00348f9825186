//go:build gym

package envconfig

import (
	env "github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/gym"
)

func init() {
	newGym = func(c Config, height, width int,
		seed uint64) (env.Environment, error) {
		e, _, err := gym.New(c.Name, height, width, c.Discount, seed)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	shutdown = gym.Shutdown
}

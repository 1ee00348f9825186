//go:build !gym

package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGymUnavailable(t *testing.T) {
	_, _, err := Default("PongNoFrameskip-v4").CreateEnv(1, "", 0)
	assert.ErrorContains(t, err, "-tags gym")
	Shutdown()
}

package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gopkg.in/yaml.v3"
)

func TestNewSolvers(t *testing.T) {
	adam, err := NewDefaultAdam(2e-4, 1)
	require.NoError(t, err)
	assert.Equal(t, Adam, adam.Type)
	assert.IsType(t, &G.AdamSolver{}, adam.Solver)

	rms, err := NewDefaultRMSProp(1e-3, 1)
	require.NoError(t, err)
	assert.IsType(t, &G.RMSPropSolver{}, rms.Solver)

	vanilla, err := NewVanilla(0.1, 1, 5)
	require.NoError(t, err)
	assert.IsType(t, &G.VanillaSolver{}, vanilla.Solver)

	_, err = newSolver(Adam, VanillaConfig{})
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	in := []byte(`{"Type": "Adam", "Config": {"StepSize": 0.0002,
		"Epsilon": 1e-8, "Beta1": 0.9, "Beta2": 0.999, "Batch": 1}}`)

	var s Solver
	require.NoError(t, json.Unmarshal(in, &s))
	assert.Equal(t, Adam, s.Type)
	assert.Equal(t, 0.0002, s.Config.(AdamConfig).StepSize)
	assert.NotNil(t, s.Solver)

	data, err := json.Marshal(&s)
	require.NoError(t, err)
	var again Solver
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, s.Config, again.Config)
}

func TestYAML(t *testing.T) {
	in := []byte("Type: RMSProp\nConfig:\n  StepSize: 0.001\n  Rho: 0.95\n")

	var s Solver
	require.NoError(t, yaml.Unmarshal(in, &s))
	assert.Equal(t, RMSProp, s.Type)
	assert.Equal(t, RMSPropConfig{StepSize: 0.001, Rho: 0.95}, s.Config)
	assert.Equal(t, 0.001, s.LearningRate())
	assert.NotNil(t, s.Solver)
}

func TestUnknownSolver(t *testing.T) {
	var s Solver
	assert.Error(t, json.Unmarshal([]byte(`{"Type": "Lion"}`), &s))
	assert.Error(t, yaml.Unmarshal([]byte("Type: Lion\n"), &s))
}

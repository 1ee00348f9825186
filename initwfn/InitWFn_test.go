package initwfn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUnmarshalJSON(t *testing.T) {
	in := []byte(`{"Type": "HeU", "Config": {"Gain": 2}}`)

	var init InitWFn
	require.NoError(t, json.Unmarshal(in, &init))
	assert.Equal(t, HeU, init.Type)
	assert.Equal(t, HeUConfig{Gain: 2}, init.Config)
	assert.NotNil(t, init.InitWFn())
}

func TestJSONRoundTrip(t *testing.T) {
	out, err := NewGaussian(0.5, 0.1)
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var in InitWFn
	require.NoError(t, json.Unmarshal(data, &in))
	assert.Equal(t, out.Config, in.Config)
	assert.Equal(t, Gaussian, in.Type)
}

func TestUnmarshalYAML(t *testing.T) {
	in := []byte("Type: GlorotU\nConfig:\n  Gain: 1.5\n")

	var init InitWFn
	require.NoError(t, yaml.Unmarshal(in, &init))
	assert.Equal(t, GlorotU, init.Type)
	assert.Equal(t, GlorotUConfig{Gain: 1.5}, init.Config)

	in = []byte("Type: Zeroes\n")
	require.NoError(t, yaml.Unmarshal(in, &init))
	assert.Equal(t, ZeroesConfig{}, init.Config)
}

func TestUnknownType(t *testing.T) {
	var init InitWFn
	assert.Error(t, json.Unmarshal([]byte(`{"Type": "Xavier"}`), &init))
	assert.Error(t, yaml.Unmarshal([]byte("Type: Xavier\n"), &init))
}

package deepq

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/samuelfneumann/godqn/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/catch"
	"github.com/samuelfneumann/godqn/environment/wrappers"
	"github.com/samuelfneumann/godqn/expreplay"
	"github.com/samuelfneumann/godqn/initwfn"
	"github.com/samuelfneumann/godqn/network"
	"github.com/samuelfneumann/godqn/solver"
	ts "github.com/samuelfneumann/godqn/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

// memRecorder records summaries in memory
type memRecorder struct {
	scalars    map[string][]float64
	histograms map[string][][]float64
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		scalars:    make(map[string][]float64),
		histograms: make(map[string][][]float64),
	}
}

func (m *memRecorder) Scalar(tag string, _ int, value float64) error {
	m.scalars[tag] = append(m.scalars[tag], value)
	return nil
}

func (m *memRecorder) Histogram(tag string, _ int, values []float64) error {
	m.histograms[tag] = append(m.histograms[tag], values)
	return nil
}

func (m *memRecorder) Close() error { return nil }

// newEnv returns a small Catch game producing stacked 10x10 frames
func newEnv(t *testing.T, seed uint64) environment.Environment {
	t.Helper()
	c, _, err := catch.New(6, 5, 2, 1.0, seed)
	require.NoError(t, err)
	w, _, err := wrappers.NewWarpFrame(c, 10, 10)
	require.NoError(t, err)
	f, _, err := wrappers.NewFrameStack(w, 2)
	require.NoError(t, err)
	return f
}

func testConfig(t *testing.T) Config {
	t.Helper()
	adam, err := solver.NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)
	init, err := initwfn.NewGlorotU(1.0)
	require.NoError(t, err)

	return Config{
		ConvLayers:  []network.ConvLayer{{Filters: 4, Kernel: 3, Stride: 2}},
		HiddenSizes: []int{8},
		Activations: []*network.Activation{network.ReLU()},
		InitWFn:     init,
		Solver:      adam,
		Discount:    0.99,
		Exploration: policy.LinearDecay{Start: 1.0, End: 0.1, Steps: 10},
		TestEpsilon: 0.0,
		ExpReplay: expreplay.Config{
			Capacity:  100,
			BatchSize: 4,
			MinSize:   10,
		},
		UpdateFreq:           2,
		TargetUpdateInterval: 6,
		Tau:                  1.0,
	}
}

// run runs the agent on the environment for the given number of steps
func run(t *testing.T, e environment.Environment, d *DQN, steps int) {
	t.Helper()
	step, err := e.Reset()
	require.NoError(t, err)
	require.NoError(t, d.ObserveFirst(step))

	for i := 0; i < steps; i++ {
		action := d.SelectAction(step)
		next, done, err := e.Step(action)
		require.NoError(t, err)
		require.NoError(t, d.Observe(action, next))
		require.NoError(t, d.Step())

		step = next
		if done {
			d.EndEpisode()
			step, err = e.Reset()
			require.NoError(t, err)
			require.NoError(t, d.ObserveFirst(step))
		}
	}
}

func weights(net network.NeuralNet) [][]float64 {
	var w [][]float64
	for _, node := range net.Learnables() {
		data := node.Value().(*tensor.Dense).Data().([]float64)
		w = append(w, append([]float64(nil), data...))
	}
	return w
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 32, c.BatchSize())
	assert.Equal(t, 2e-4, c.LearningRate())
	assert.Equal(t, 1000, c.TargetUpdateInterval)
	assert.Equal(t, 2, c.UpdateFreq)
	assert.Equal(t, []int{128}, c.HiddenSizes)
	assert.Equal(t, 10_000, c.ExpReplay.MinSize)
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"activations":     func(c *Config) { c.Activations = nil },
		"solver":          func(c *Config) { c.Solver = nil },
		"discount":        func(c *Config) { c.Discount = 1.5 },
		"test epsilon":    func(c *Config) { c.TestEpsilon = -1 },
		"update freq":     func(c *Config) { c.UpdateFreq = 0 },
		"target interval": func(c *Config) { c.TargetUpdateInterval = 0 },
		"tau":             func(c *Config) { c.Tau = 0 },
		"replay":          func(c *Config) { c.ExpReplay.MinSize = 100 },
		"exploration":     func(c *Config) { c.Exploration.End = 2 },
	}

	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			c := testConfig(t)
			modify(&c)
			assert.Error(t, c.Validate())

			_, err := New(newEnv(t, 1), c, 1)
			assert.Error(t, err)
		})
	}
}

func TestConfigYAML(t *testing.T) {
	in := []byte(`
ConvLayers:
  - {Filters: 16, Kernel: 8, Stride: 4}
HiddenSizes: [64]
Activations: [tanh]
InitWFn: {Type: HeU, Config: {Gain: 1.0}}
Solver: {Type: RMSProp, Config: {StepSize: 0.001}}
Discount: 0.9
Exploration: {Start: 1.0, End: 0.05, Steps: 500}
TestEpsilon: 0.05
ExpReplay: {Capacity: 1000, BatchSize: 16, MinSize: 100}
UpdateFreq: 4
TargetUpdateInterval: 100
Tau: 0.5
`)
	var c Config
	require.NoError(t, yaml.Unmarshal(in, &c))
	require.NoError(t, c.Validate())

	assert.Equal(t, []network.ConvLayer{{Filters: 16, Kernel: 8, Stride: 4}},
		c.ConvLayers)
	assert.Equal(t, "tanh", c.Activations[0].String())
	assert.Equal(t, initwfn.HeU, c.InitWFn.Type)
	assert.Equal(t, 0.001, c.LearningRate())
	assert.Equal(t, 16, c.BatchSize())
	assert.Equal(t, 0.5, c.Tau)
}

func TestEpsilonDecay(t *testing.T) {
	d, err := New(newEnv(t, 1), testConfig(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Epsilon())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Step())
	}
	assert.InDelta(t, 0.55, d.Epsilon(), 1e-9)
	assert.Equal(t, 5, d.Steps())

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Step())
	}
	assert.Equal(t, 0.1, d.Epsilon())
}

func TestObserve(t *testing.T) {
	e := newEnv(t, 2)
	d, err := New(e, testConfig(t), 2)
	require.NoError(t, err)

	step, err := e.Reset()
	require.NoError(t, err)

	action := d.SelectAction(step)
	next, _, err := e.Step(action)
	require.NoError(t, err)
	assert.Error(t, d.Observe(action, next), "ObserveFirst not called")
	assert.Error(t, d.ObserveFirst(next), "not a first timestep")

	run(t, e, d, 7)
	assert.Equal(t, 7, d.ReplayLen())

	// Transitions are not stored in evaluation mode
	d.Eval()
	assert.True(t, d.IsEval())
	run(t, e, d, 3)
	assert.Equal(t, 7, d.ReplayLen())
	d.Train()
	assert.False(t, d.IsEval())
}

func TestTrainingStartsOnceBufferIsReady(t *testing.T) {
	e := newEnv(t, 3)
	d, err := New(e, testConfig(t), 3)
	require.NoError(t, err)
	rec := newMemRecorder()
	d.SetRecorder(rec)

	// The buffer must hold more than 10 transitions before training
	run(t, e, d, 10)
	assert.Equal(t, 0, d.Updates())
	assert.Empty(t, rec.scalars[LossTag])

	run(t, e, d, 14)
	assert.Equal(t, 24, d.Steps())

	// Steps 12 to 24 update every 2 steps
	assert.Equal(t, 7, d.Updates())
	assert.Len(t, rec.scalars[LossTag], 7)
	assert.Len(t, rec.scalars[QValueTag], 7)
	require.Len(t, rec.histograms[QValuesTag], 7)
	assert.Len(t, rec.histograms[QValuesTag][0], 4)

	// Target updates at steps 12, 18, and 24
	assert.Len(t, rec.scalars[MeanLossTag], 3)
	for _, loss := range rec.scalars[LossTag] {
		assert.GreaterOrEqual(t, loss, 0.0)
	}

	// The behaviour network tracks the training network
	assert.Equal(t, weights(d.trainNet), weights(d.behaviour))
}

func TestLossOfUpdateTarget(t *testing.T) {
	e := newEnv(t, 9)
	ones, err := initwfn.NewOnes()
	require.NoError(t, err)

	c := testConfig(t)
	c.ConvLayers = nil
	c.HiddenSizes = nil
	c.Activations = nil
	c.InitWFn = ones
	c.Discount = 0.9
	c.TargetUpdateInterval = 1000
	c.ExpReplay = expreplay.Config{
		Capacity:  2,
		BatchSize: 2,
		MinSize:   1,
		Sampler:   expreplay.Latest,
	}

	d, err := New(e, c, 9)
	require.NoError(t, err)
	rec := newMemRecorder()
	d.SetRecorder(rec)

	obsSize := environment.Size(e.ObservationSpec().Shape)
	filled := func(pixel float64) *mat.VecDense {
		v := mat.NewVecDense(obsSize, nil)
		for i := 0; i < obsSize; i++ {
			v.SetVec(i, pixel)
		}
		return v
	}

	// With unit weights and zero biases, each action is valued at the
	// sum of the scaled observation
	value := func(pixel float64) float64 {
		return float64(obsSize) * pixel / 255
	}

	require.NoError(t, d.replay.Add(ts.Transition{
		State:     filled(2),
		Action:    1,
		Reward:    0.5,
		Discount:  1,
		NextState: filled(3),
	}))
	require.NoError(t, d.replay.Add(ts.Transition{
		State:     filled(1),
		Action:    2,
		Reward:    1,
		Discount:  1,
		NextState: filled(4),
		Done:      true,
	}))
	require.NoError(t, d.train())

	// The terminal transition does not bootstrap from the next state
	mid := 0.5 + 0.9*value(3) - value(2)
	last := 1.0 - value(1)
	want := (mid*mid + last*last) / 2

	require.Len(t, rec.scalars[LossTag], 1)
	assert.InDelta(t, want, rec.scalars[LossTag][0], 1e-9)
	require.Len(t, rec.histograms[QValuesTag], 1)
	assert.InDeltaSlice(t, []float64{value(2), value(1)},
		rec.histograms[QValuesTag][0], 1e-9)
}

func TestTargetNetworkUpdates(t *testing.T) {
	e := newEnv(t, 4)
	c := testConfig(t)
	c.TargetUpdateInterval = 1000
	d, err := New(e, c, 4)
	require.NoError(t, err)

	initial := weights(d.targetNet)
	run(t, e, d, 20)
	require.Greater(t, d.Updates(), 0)
	assert.Equal(t, initial, weights(d.targetNet))
	assert.NotEqual(t, initial, weights(d.trainNet))

	require.NoError(t, d.updateTarget())
	assert.Equal(t, weights(d.trainNet), weights(d.targetNet))
}

func TestPolyakTargetUpdates(t *testing.T) {
	e := newEnv(t, 5)
	c := testConfig(t)
	c.Tau = 0.5
	c.TargetUpdateInterval = 1000
	d, err := New(e, c, 5)
	require.NoError(t, err)

	before := weights(d.targetNet)
	run(t, e, d, 20)
	train := weights(d.trainNet)

	require.NoError(t, d.updateTarget())
	after := weights(d.targetNet)
	for i := range after {
		for j := range after[i] {
			assert.InDelta(t, 0.5*before[i][j]+0.5*train[i][j], after[i][j],
				1e-9)
		}
	}
}

func TestActionSelection(t *testing.T) {
	e := newEnv(t, 6)
	d, err := New(e, testConfig(t), 6)
	require.NoError(t, err)

	step, err := e.Reset()
	require.NoError(t, err)

	values, err := d.ActionValues(step.Observation)
	require.NoError(t, err)
	assert.Len(t, values, 3)

	// Greedy in evaluation mode with a test epsilon of 0
	d.Eval()
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, float64(best), d.SelectAction(step).AtVec(0))
	}

	_, err = d.ActionValues(nil)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	e := newEnv(t, 7)
	d, err := New(e, testConfig(t), 7)
	require.NoError(t, err)
	run(t, e, d, 20)

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf))

	loaded, err := New(e, testConfig(t), 8)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(&buf))

	assert.Equal(t, d.Steps(), loaded.Steps())
	assert.Equal(t, d.Updates(), loaded.Updates())
	assert.Equal(t, d.Epsilon(), loaded.Epsilon())
	assert.Equal(t, weights(d.trainNet), weights(loaded.trainNet))
	assert.Equal(t, weights(d.targetNet), weights(loaded.targetNet))
	assert.Equal(t, 0, loaded.ReplayLen())

	step, err := e.Reset()
	require.NoError(t, err)
	want, err := d.ActionValues(step.Observation)
	require.NoError(t, err)
	got, err := loaded.ActionValues(step.Observation)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-9)

	assert.Error(t, loaded.Load(bytes.NewReader([]byte("not a checkpoint"))))

	// Epsilon must follow the exploration schedule
	buf.Reset()
	require.NoError(t, gob.NewEncoder(&buf).Encode(checkpoint{
		Online:  d.trainNet,
		Target:  d.targetNet,
		Steps:   5,
		Epsilon: 0.9,
	}))
	assert.ErrorContains(t, loaded.Load(&buf), "exploration schedule")
}

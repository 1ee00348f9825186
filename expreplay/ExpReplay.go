// Package expreplay implements an experience replay buffer for agents
// which learn from pixel observations.
//
// The buffer is a ring buffer: once it is full, adding a transition
// evicts the oldest transition. Observations are stored as bytes to
// reduce memory usage, so observation values must be pixel values in
// [0, 255]. Sampled observations are scaled to [0, 1].
package expreplay

import (
	"fmt"
	"math"
	"runtime"

	ts "github.com/samuelfneumann/godqn/timestep"
	"golang.org/x/sync/errgroup"
)

// Samplers determine which transitions are sampled from a Buffer
const (
	// Uniform samples transitions uniformly with replacement
	Uniform = "uniform"

	// Latest samples the most recently added transitions, which
	// trains agents online without replaying old experience
	Latest = "latest"
)

// Config implements a specific configuration of a Buffer
type Config struct {
	Capacity  int `yaml:"Capacity"`  // Maximum transitions stored
	BatchSize int `yaml:"BatchSize"` // Transitions per sample
	MinSize   int `yaml:"MinSize"`   // Sampling needs more than MinSize

	// Sampler is Uniform or Latest, defaulting to Uniform if empty
	Sampler string `yaml:"Sampler,omitempty"`
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("validate: capacity must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.Capacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive\n\t"+
			"want(>0)\n\thave(%v)", c.BatchSize)
	}
	if c.MinSize < 0 || c.MinSize >= c.Capacity {
		return fmt.Errorf("validate: minimum size must be in [0, %v)\n\t"+
			"have(%v)", c.Capacity, c.MinSize)
	}
	if c.Sampler != "" && c.Sampler != Uniform && c.Sampler != Latest {
		return fmt.Errorf("validate: no such sampler %q", c.Sampler)
	}
	return nil
}

// Create creates and returns the Buffer with the specified Config
func (c Config) Create(obsSize, numActions int, seed uint64) (*Buffer,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	sampler := NewUniformSelector(c.BatchSize, seed)
	if c.Sampler == Latest {
		sampler = NewLatestSelector(c.BatchSize)
	}
	return New(sampler, c.Capacity, c.MinSize, obsSize, numActions)
}

// Batch is a batch of transitions sampled from a Buffer. States and
// NextStates are stored row-major with one observation per row.
type Batch struct {
	States     []float64
	Actions    []int
	Rewards    []float64
	Discounts  []float64
	NextStates []float64
	Dones      []bool
}

// Size returns the number of transitions in the batch
func (b Batch) Size() int {
	return len(b.Actions)
}

// Buffer implements an experience replay buffer
type Buffer struct {
	states     []uint8
	nextStates []uint8
	actions    []int
	rewards    []float64
	discounts  []float64
	dones      []bool

	next int // Index at which the next transition is added
	size int

	sampler Selector

	capacity   int
	minSize    int
	obsSize    int
	numActions int
}

// New creates and returns a new Buffer. The sampler determines how
// transitions are sampled. The buffer holds at most capacity
// transitions and can only be sampled once it holds more than minSize
// transitions. Each observation must have obsSize values, and actions
// must be in [0, numActions).
func New(sampler Selector, capacity, minSize, obsSize,
	numActions int) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be positive\n\t"+
			"want(>0)\n\thave(%v)", capacity)
	}
	if minSize < 0 || minSize >= capacity {
		return nil, fmt.Errorf("new: minimum size must be in [0, %v)\n\t"+
			"have(%v)", capacity, minSize)
	}
	if obsSize < 1 || numActions < 1 {
		return nil, fmt.Errorf("new: observation size and number of "+
			"actions must be positive\n\thave(obs=%v, actions=%v)", obsSize,
			numActions)
	}
	if sampler.BatchSize() < 1 {
		return nil, fmt.Errorf("new: batch size must be positive\n\t"+
			"have(%v)", sampler.BatchSize())
	}

	return &Buffer{
		states:     make([]uint8, capacity*obsSize),
		nextStates: make([]uint8, capacity*obsSize),
		actions:    make([]int, capacity),
		rewards:    make([]float64, capacity),
		discounts:  make([]float64, capacity),
		dones:      make([]bool, capacity),

		sampler: sampler,

		capacity:   capacity,
		minSize:    minSize,
		obsSize:    obsSize,
		numActions: numActions,
	}, nil
}

// Add adds a transition to the buffer, evicting the oldest transition
// if the buffer is full
func (b *Buffer) Add(t ts.Transition) error {
	if t.State == nil || t.NextState == nil {
		return &ExpReplayError{Op: "add", Err: fmt.Errorf("missing state")}
	}
	if t.State.Len() != b.obsSize || t.NextState.Len() != b.obsSize {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("invalid observation size\n\twant(%v)\n\t"+
				"have(%v, %v)", b.obsSize, t.State.Len(), t.NextState.Len()),
		}
	}
	if t.Action < 0 || t.Action >= b.numActions {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("illegal action\n\twant([0, %v))\n\thave(%v)",
				b.numActions, t.Action),
		}
	}

	start := b.next * b.obsSize
	toBytes(b.states[start:start+b.obsSize], t.State.RawVector().Data)
	toBytes(b.nextStates[start:start+b.obsSize],
		t.NextState.RawVector().Data)
	b.actions[b.next] = t.Action
	b.rewards[b.next] = t.Reward
	b.discounts[b.next] = t.Discount
	b.dones[b.next] = t.Done

	b.next = (b.next + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	return nil
}

// toBytes stores pixel values as bytes
func toBytes(dst []uint8, src []float64) {
	for i, v := range src {
		dst[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
}

// Sample samples a batch of transitions from the buffer. Observations
// in the batch are scaled by 1/255.
func (b *Buffer) Sample() (Batch, error) {
	if b.size == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if !b.Ready() {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := b.sampler.choose(b.size)
	batchSize := len(indices)
	batch := Batch{
		States:     make([]float64, batchSize*b.obsSize),
		Actions:    make([]int, batchSize),
		Rewards:    make([]float64, batchSize),
		Discounts:  make([]float64, batchSize),
		NextStates: make([]float64, batchSize*b.obsSize),
		Dones:      make([]bool, batchSize),
	}

	// Fill the state batches concurrently
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, index := range indices {
		pos := b.position(index)
		batch.Actions[i] = b.actions[pos]
		batch.Rewards[i] = b.rewards[pos]
		batch.Discounts[i] = b.discounts[pos]
		batch.Dones[i] = b.dones[pos]

		g.Go(func() error {
			dst := i * b.obsSize
			src := pos * b.obsSize
			scale(batch.States[dst:dst+b.obsSize],
				b.states[src:src+b.obsSize])
			scale(batch.NextStates[dst:dst+b.obsSize],
				b.nextStates[src:src+b.obsSize])
			return nil
		})
	}
	_ = g.Wait()

	return batch, nil
}

// position returns the position in the buffer's storage of the
// transition at index i, where index 0 is the oldest transition
func (b *Buffer) position(i int) int {
	oldest := 0
	if b.size == b.capacity {
		oldest = b.next
	}
	return (oldest + i) % b.capacity
}

// scale converts bytes to floats in [0, 1]
func scale(dst []float64, src []uint8) {
	for i, v := range src {
		dst[i] = float64(v) / 255.0
	}
}

// Len returns the number of transitions in the buffer
func (b *Buffer) Len() int {
	return b.size
}

// Ready returns whether the buffer holds enough transitions to be
// sampled
func (b *Buffer) Ready() bool {
	return b.size > b.minSize
}

// Capacity returns the maximum number of transitions in the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// MinSize returns the number of transitions that must be exceeded
// before the buffer can be sampled
func (b *Buffer) MinSize() int {
	return b.minSize
}

// BatchSize returns the number of transitions returned by Sample()
func (b *Buffer) BatchSize() int {
	return b.sampler.BatchSize()
}

// String returns the string representation of the Buffer
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(%v/%v, min=%v, batch=%v)", b.size, b.capacity,
		b.minSize, b.BatchSize())
}

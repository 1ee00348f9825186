package expreplay

import "golang.org/x/exp/rand"

// Selector implements functionality for choosing which transitions
// are sampled from an experience replay buffer
type Selector interface {
	// choose selects BatchSize() indices in [0, n) at which transitions
	// are sampled from a buffer holding n transitions
	choose(n int) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly with replacement
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(samples int, seed uint64) Selector {
	return &uniformSelector{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// buffer
func (u *uniformSelector) choose(n int) []int {
	selected := make([]int, u.samples)
	for i := range selected {
		selected[i] = u.rng.Intn(n)
	}
	return selected
}

// latestSelector is a Selector which selects the most recently added
// transitions
type latestSelector struct {
	samples int
}

// NewLatestSelector returns a new Selector which selects the most
// recently added data. If fewer transitions than samples are in the
// buffer, the oldest transition is selected repeatedly.
func NewLatestSelector(samples int) Selector {
	return &latestSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (l *latestSelector) BatchSize() int {
	return l.samples
}

// choose selects the indices, relative to the oldest transition, of
// the most recent transitions
func (l *latestSelector) choose(n int) []int {
	selected := make([]int, l.samples)
	for i := range selected {
		selected[i] = max(n-l.samples+i, 0)
	}
	return selected
}

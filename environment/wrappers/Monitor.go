package wrappers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/godqn/environment"
	"github.com/samuelfneumann/godqn/environment/frame"
	ts "github.com/samuelfneumann/godqn/timestep"
	"gonum.org/v1/gonum/mat"
)

// Monitor records the frames of every n-th episode of the wrapped
// environment to disk as a sequence of PNG images. Frames of the
// recorded episode with index i are saved as
//
//	dir/episode-<i>/frame-<t>.png
//
// with the episode index and the return so far drawn in the top-left
// corner. Episodes are indexed from 0, so the first episode is always
// recorded. An episode is only counted once a step is taken in it, so
// resets performed while constructing other wrappers are not counted.
type Monitor struct {
	environment.Environment

	dir   string
	every int
	shape []int

	episode   int // Index of the current episode
	frame     int // Index of the next frame to record
	episodeRe float64
	recording bool

	started bool          // Whether a step was taken since the last reset
	first   *mat.VecDense // Observation of the last reset
	paused  bool
}

// NewMonitor returns a new Monitor which records every n-th episode to
// dir. The wrapped environment should produce raw frames of shape
// (h, w, c).
func NewMonitor(env environment.Environment, dir string,
	every int) (*Monitor, ts.TimeStep, error) {
	if every < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newMonitor: every must be "+
			"positive\n\twant(>0)\n\thave(%v)", every)
	}
	h, w, c, err := frameShape(env)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newMonitor: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newMonitor: %v", err)
	}

	m := &Monitor{
		Environment: env,
		dir:         dir,
		every:       every,
		shape:       []int{h, w, c},
		episode:     -1,
	}

	step, err := m.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newMonitor: %v", err)
	}
	return m, step, nil
}

// Reset resets the environment
func (m *Monitor) Reset() (ts.TimeStep, error) {
	step, err := m.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}

	m.started = false
	m.recording = false
	m.first = step.Observation
	return step, nil
}

// Step takes one environmental step, recording the frame if the
// current episode is being recorded
func (m *Monitor) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if m.paused {
		return m.Environment.Step(a)
	}
	if !m.started {
		if err := m.start(); err != nil {
			return ts.TimeStep{}, false, fmt.Errorf("step: %v", err)
		}
	}

	step, done, err := m.Environment.Step(a)
	if err != nil {
		return step, done, err
	}

	m.episodeRe += step.Reward
	if m.recording {
		if err := m.record(step.Observation); err != nil {
			return step, done, fmt.Errorf("step: %v", err)
		}
	}
	return step, done, nil
}

// start starts a new episode, recording the first frame of the
// episode if the episode should be recorded
func (m *Monitor) start() error {
	m.started = true
	m.episode++
	m.frame = 0
	m.episodeRe = 0
	m.recording = m.episode%m.every == 0

	if !m.recording {
		return nil
	}
	if err := os.MkdirAll(m.episodeDir(), 0o755); err != nil {
		return err
	}
	return m.record(m.first)
}

// Pause stops counting and recording episodes until Resume is called
func (m *Monitor) Pause() {
	m.paused = true
	m.recording = false
}

// Resume resumes counting and recording episodes. The next step taken
// starts a new episode.
func (m *Monitor) Resume() {
	m.paused = false
	m.started = false
}

// Episode returns the index of the current episode, or -1 if no step
// has been taken yet
func (m *Monitor) Episode() int {
	return m.episode
}

// Recording returns whether the current episode is being recorded
func (m *Monitor) Recording() bool {
	return m.recording
}

// Dir returns the directory to which episodes are recorded
func (m *Monitor) Dir() string {
	return m.dir
}

func (m *Monitor) episodeDir() string {
	return filepath.Join(m.dir, fmt.Sprintf("episode-%06d", m.episode))
}

// record saves a frame as a PNG image
func (m *Monitor) record(obs *mat.VecDense) error {
	img, err := frame.ToImage(obs.RawVector().Data, m.shape)
	if err != nil {
		return err
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(fmt.Sprintf("ep %d  R %.0f", m.episode, m.episodeRe),
		2, 12)

	path := filepath.Join(m.episodeDir(), fmt.Sprintf("frame-%06d.png",
		m.frame))
	m.frame++
	return dc.SavePNG(path)
}

// Unwrap returns the wrapped environment
func (m *Monitor) Unwrap() environment.Environment {
	return m.Environment
}

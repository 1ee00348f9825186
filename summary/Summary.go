// Package summary records scalar and histogram summaries of a training
// run so that learning progress can be inspected after, or during,
// training.
//
// Summaries are stored in a SQLite database in the run's directory.
// Each process writing to a database is identified by a unique run ID.
package summary

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Recorder records summaries at a given step of training
type Recorder interface {
	// Scalar records a single value
	Scalar(tag string, step int, value float64) error

	// Histogram records the distribution of a set of values
	Histogram(tag string, step int, values []float64) error

	Close() error
}

// Scalar is a recorded scalar summary
type Scalar struct {
	Step  int
	Value float64
}

// Histogram is a recorded histogram summary
type Histogram struct {
	Step     int
	Count    int
	Min, Max float64
	Mean     float64
	StdDev   float64
	Dividers []float64 // Bucket boundaries, len(Counts) + 1 values
	Counts   []float64
}

// Hyperparameters are the hyperparameters that name a run directory
type Hyperparameters struct {
	LearningRate         float64
	TargetUpdateInterval int
	UpdateFreq           int
	Frames               int
}

// String returns the hyperparameter string used in run names
func (h Hyperparameters) String() string {
	return fmt.Sprintf("-lr_%v-upTN_%v-upF_%v-frms_%v",
		strconv.FormatFloat(h.LearningRate, 'g', -1, 64),
		h.TargetUpdateInterval, h.UpdateFreq, h.Frames)
}

// RunName returns the name of a run started at time now:
//
//	DQN_<day>_<hour>.<minute>.<second>_<hyperparameters>
func RunName(now time.Time, h Hyperparameters) string {
	return fmt.Sprintf("DQN_%d_%d.%d.%d_%v", now.Day(), now.Hour(),
		now.Minute(), now.Second(), h)
}

// RunDir returns the directory of a run on environment env, which is
// logDir/env/RunName(now, h)
func RunDir(logDir, env string, now time.Time, h Hyperparameters) string {
	return filepath.Join(logDir, env, RunName(now, h))
}

// Nop is a Recorder which records nothing
type Nop struct{}

// NewNop returns a new Nop Recorder
func NewNop() Nop { return Nop{} }

func (Nop) Scalar(string, int, float64) error      { return nil }
func (Nop) Histogram(string, int, []float64) error { return nil }
func (Nop) Close() error                           { return nil }

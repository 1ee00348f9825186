// Package checkpointer implements checkpointing of agents during an
// experiment
package checkpointer

import "io"

// Saver is an object whose state can be saved
type Saver interface {
	Save(w io.Writer) error
}

// Checkpointer checkpoints/saves objects at the end of episodes
type Checkpointer interface {
	Checkpoint(episode int) error
}

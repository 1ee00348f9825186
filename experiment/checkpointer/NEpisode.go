package checkpointer

import (
	"fmt"
	"os"
)

// nEpisode implements checkpointing every N episodes
type nEpisode struct {
	interval int
	object   Saver // Object to save

	// filename returns the filename of the file to save the object in.
	//
	// If each saved object should be saved in a separate file with
	// each file having an incremented number as a suffix (e.g.
	// file1.gob, file2.gob, ..., fileK.gob), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	filename func() string
}

// NewNEpisode returns a checkpointer that checkpoints object at the end
// of every n-th episode.
func NewNEpisode(n int, object Saver,
	filename func() string) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNEpisode: checkpoint interval must be "+
			"positive\n\twant(>0)\n\thave(%v)", n)
	}
	return &nEpisode{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method if the episode with index episode is the n-th
// episode since the last checkpoint
func (n *nEpisode) Checkpoint(episode int) error {
	if (episode+1)%n.interval != 0 {
		return nil
	}

	file, err := os.Create(n.filename())
	if err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := n.object.Save(file); err != nil {
		file.Close()
		return fmt.Errorf("checkpoint: %v", err)
	}
	return file.Close()
}

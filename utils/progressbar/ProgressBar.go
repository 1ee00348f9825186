// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar implements a concurrent progress bar. The bar is redrawn
// in a separate goroutine every updateEvery, so that the progress bar
// runs concurrently with all other processes.
type ProgressBar struct {
	out io.Writer

	// width determines the number of characters wide that the progress
	// bar should be
	width int

	// maxProgress determines the number of times Increment() should
	// be called before the progress bar reaches 100%.
	maxProgress int

	updateEvery time.Duration

	mu              sync.Mutex
	currentProgress int
	startTime       time.Time
	displayed       bool
	closed          bool

	closeEvent chan struct{}
	wg         sync.WaitGroup
}

// NewProgressBar returns a new progress bar that is width characters
// wide and reaches 100% capacity after max Increment() calls. The bar
// is written to out.
func NewProgressBar(out io.Writer, width, max int,
	updateEvery time.Duration) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{
		out:         out,
		width:       width,
		maxProgress: max,
		updateEvery: updateEvery,
		startTime:   time.Now(),
		closeEvent:  make(chan struct{}),
	}
}

// Increment increments the interal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Progress returns the number of times Increment was called, up to the
// maximum progress
func (p *ProgressBar) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentProgress
}

// Display starts displaying the progress bar. It should only be called
// once.
func (p *ProgressBar) Display() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.displayed || p.closed {
		return
	}
	p.displayed = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		tick := time.NewTicker(p.updateEvery)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				p.draw()
			case <-p.closeEvent:
				return
			}
		}
	}()
}

// Close closes the progress bar so that it will no longer display to
// the screen, drawing the bar one last time. This function also cleans
// up any resources the progress bar is using.
func (p *ProgressBar) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("close: close on closed progress bar")
	}
	p.closed = true
	displayed := p.displayed
	p.mu.Unlock()

	close(p.closeEvent)
	p.wg.Wait()

	if displayed {
		p.draw()
		fmt.Fprintln(p.out) // Jump to next line after printed pbar
	}
	return nil
}

// draw redraws the progress bar on the current line
func (p *ProgressBar) draw() {
	fmt.Fprintf(p.out, "\r\033[K%v", p.String())
}

// String returns the current progress bar
func (p *ProgressBar) String() string {
	p.mu.Lock()
	progress := float64(p.currentProgress) / float64(p.maxProgress)
	elapsed := time.Since(p.startTime).Truncate(time.Second)
	p.mu.Unlock()

	filled := int(progress * float64(p.width))

	var bar strings.Builder
	bar.WriteString("|")
	bar.WriteString(strings.Repeat("█", filled))
	bar.WriteString(strings.Repeat(" ", p.width-filled))
	fmt.Fprintf(&bar, "| [%.2f%% | elapsed: %v]", progress*100, elapsed)

	return bar.String()
}

// Package progress renders merge progress as a single-line terminal bar.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/starford/collate/internal/merge"
)

const defaultWidth = 40

// Bar implements merge.Listener by redrawing one line per new percentage.
type Bar struct {
	mu       sync.Mutex
	writer   io.Writer
	width    int
	enabled  bool
	last     int
	done     chan merge.Result
	finished bool
}

// New returns a bar writing to w. Rendering is enabled only when w is a
// terminal; the final result is still delivered either way.
func New(w io.Writer) *Bar {
	return &Bar{
		writer:  w,
		width:   defaultWidth,
		enabled: isTerminal(w),
		last:    -1,
		done:    make(chan merge.Result, 1),
	}
}

// ForceEnabled turns rendering on regardless of terminal detection.
func (b *Bar) ForceEnabled() *Bar {
	b.enabled = true
	return b
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Progress implements merge.Listener.
func (b *Bar) Progress(_ uint64, percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || percent == b.last {
		return
	}
	b.last = percent
	b.render(percent)
}

// Finished implements merge.Listener.
func (b *Bar) Finished(r merge.Result) {
	b.mu.Lock()
	if b.enabled && !b.finished {
		fmt.Fprint(b.writer, "\n")
	}
	b.finished = true
	b.mu.Unlock()

	select {
	case b.done <- r:
	default:
	}
}

// Done delivers the result of the run the bar is attached to.
func (b *Bar) Done() <-chan merge.Result {
	return b.done
}

// render must be called with mu already locked
func (b *Bar) render(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := b.width * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", b.width-filled)
	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%%", bar, percent)
}

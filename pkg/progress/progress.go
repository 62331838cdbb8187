// Package progress provides progress reporting for long-running operations.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Callback receives progress updates during long operations.
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Reporter renders progress for one operation.
type Reporter interface {
	Callback() Callback
	Done(message string)
}

// New picks a reporter: nothing when disabled, plain lines under CI, a
// progress bar otherwise.
func New(op string, total int, enabled bool, w io.Writer) Reporter {
	switch {
	case !enabled:
		return disabled{}
	case os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "":
		return NewLines(op, w)
	default:
		return NewTerminal(op, total, w)
	}
}

type disabled struct{}

func (disabled) Callback() Callback { return Noop }
func (disabled) Done(string)        {}

// Terminal displays a progress bar.
type Terminal struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewTerminal creates a progress bar writing to w.
func NewTerminal(op string, total int, w io.Writer) *Terminal {
	return &Terminal{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(op),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Callback returns a Callback that moves the bar.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		_ = t.bar.Set(current)
	}
}

// Done completes the bar.
func (t *Terminal) Done(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.bar.Finish()
}

// Lines prints one line per update, for logs that cannot redraw.
type Lines struct {
	mu sync.Mutex
	w  io.Writer
	op string
}

// NewLines creates a line reporter writing to w.
func NewLines(op string, w io.Writer) *Lines {
	return &Lines{w: w, op: op}
}

// Callback returns a Callback that prints each update.
func (l *Lines) Callback() Callback {
	return func(op string, current, total int, message string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		fmt.Fprintf(l.w, "%s [%d/%d] %s\n", l.op, current, total, message)
	}
}

// Done prints the final message.
func (l *Lines) Done(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if message == "" {
		message = "complete"
	}
	fmt.Fprintf(l.w, "%s %s\n", l.op, message)
}

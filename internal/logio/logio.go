// Package logio writes the "[numfn] ..." progress lines and error messages
// of the command line tools.
package logio

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/numfn/internal/config"
)

const (
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Logger is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	color   bool
}

// New returns a logger writing to w. Colour is used only when w is a
// terminal.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{w: w, verbose: verbose, color: IsTerminal(w)}
}

// Stderr is New(os.Stderr, verbose).
func Stderr(verbose bool) *Logger { return New(os.Stderr, verbose) }

// Discard drops everything.
func Discard() *Logger { return New(io.Discard, false) }

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *Logger) Verbose() bool { return l != nil && l.verbose }

// Verbosef writes a progress line when verbose output is on.
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if !l.Verbose() {
		return
	}
	l.line(ansiDim, config.VerbosePrefix+" "+fmt.Sprintf(format, args...))
}

// Warnf always writes a warning line.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.line(ansiDim, config.VerbosePrefix+" warning: "+fmt.Sprintf(format, args...))
}

// Errorf always writes an error line.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.line(ansiRed, "error: "+fmt.Sprintf(format, args...))
}

func (l *Logger) line(color, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color {
		fmt.Fprintf(l.w, "%s%s%s\n", color, msg, ansiReset)
		return
	}
	fmt.Fprintln(l.w, msg)
}

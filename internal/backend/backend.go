// Package backend provides the build backends: C source emission, bytecode
// compilation and tree-walk interpretation. The latter two can execute.
package backend

import (
	"fmt"
	"io"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/emitter"
	"github.com/funvibe/numfn/internal/session"
)

// Backend is the interface for build backends
type Backend interface {
	// Build produces the artifact of def. Sub-functions are built, or
	// reused, through sess.
	Build(sess *session.Session, def *ast.FunctionDefinition) (Artifact, error)

	// Name returns the backend name for display
	Name() string
}

// Artifact is what a backend builds for one function.
type Artifact interface {
	FunctionName() string
}

// Executable is an artifact that can be evaluated in-process.
type Executable interface {
	Artifact
	NumIn() int
	NumOut() int
	// NewRunner returns an evaluator private to the calling goroutine.
	NewRunner() (Runner, error)
}

// Runner evaluates an Executable. A Runner is not safe for concurrent use.
type Runner interface {
	Run(in []float64) ([]float64, error)
}

// Codec is implemented by backends whose artifacts can be stored in the
// artifact cache.
type Codec interface {
	// Format names the serialized form, for cache keys.
	Format() string
	Encode(a Artifact) ([]byte, error)
	Decode(function string, data []byte) (Artifact, error)
}

// Options tune the backends created by New.
type Options struct {
	Config *config.Config
	// Trace, when set, receives the VM execution trace.
	Trace io.Writer
}

// New returns the backend called name.
func New(name string, opts Options) (Backend, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	switch name {
	case config.BackendVM, "":
		return NewVM(cfg.StackCapacity, opts.Trace), nil
	case config.BackendTree:
		return NewTreeWalk(), nil
	case config.BackendSource:
		return NewSource(emitter.OptionsFrom(cfg)), nil
	}
	return nil, fmt.Errorf("unknown backend %q (want %s, %s or %s)",
		name, config.BackendVM, config.BackendTree, config.BackendSource)
}

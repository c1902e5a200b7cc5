// Package session holds the registry shared by one top-level compilation:
// which sub-functions each backend has already built, which are being built
// right now, and the text buffers of the source emitter.
//
// A Session is owned by a single compilation and is not safe for
// concurrent use. Artifacts it hands out are immutable.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

// Backend kinds used as artifact namespaces.
const (
	KindSource   = "source"
	KindBytecode = "bytecode"
	KindTree     = "tree"
)

// Resolver finds sub-function definitions by name.
type Resolver interface {
	Lookup(name string) (*ast.FunctionDefinition, error)
}

type key struct {
	kind string
	name string
}

type Session struct {
	ID uuid.UUID

	resolver Resolver
	built    map[key]interface{}
	order    map[string][]string
	active   map[key]bool
	stack    []key

	// Source emitter buffers: forward declarations and definitions of every
	// sub-function in the closure, each written exactly once.
	Declarations strings.Builder
	Definitions  strings.Builder
}

// New creates a session resolving sub-functions through r. r may be nil
// when the compiled function calls nothing.
func New(r Resolver) *Session {
	return &Session{
		ID:       uuid.New(),
		resolver: r,
		built:    make(map[key]interface{}),
		order:    make(map[string][]string),
		active:   make(map[key]bool),
	}
}

// Begin marks name as being built by kind. It fails with C005 when name is
// already on the build stack.
func (s *Session) Begin(kind, name string) error {
	k := key{kind, name}
	if s.active[k] {
		path := make([]string, 0, len(s.stack)+1)
		for _, e := range s.stack {
			if e.kind == kind {
				path = append(path, e.name)
			}
		}
		path = append(path, name)
		return diagnostics.NewError(diagnostics.ErrC005, name, "call",
			"recursive sub-function reference %s", strings.Join(path, " -> "))
	}
	s.active[k] = true
	s.stack = append(s.stack, k)
	return nil
}

// End pops name from the build stack.
func (s *Session) End(kind, name string) {
	k := key{kind, name}
	delete(s.active, k)
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == k {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			break
		}
	}
}

// Lookup resolves a sub-function definition.
func (s *Session) Lookup(name string) (*ast.FunctionDefinition, error) {
	if s.resolver == nil {
		return nil, diagnostics.NewError(diagnostics.ErrC004, name, "call", "unknown function %s", name)
	}
	return s.resolver.Lookup(name)
}

// Artifact returns what kind built for name, if anything.
func (s *Session) Artifact(kind, name string) (interface{}, bool) {
	a, ok := s.built[key{kind, name}]
	return a, ok
}

// Built lists the names kind has built, in completion order (callees
// before their callers).
func (s *Session) Built(kind string) []string {
	return append([]string(nil), s.order[kind]...)
}

func (s *Session) record(kind, name string, artifact interface{}) {
	s.built[key{kind, name}] = artifact
	s.order[kind] = append(s.order[kind], name)
}

// Ensure returns the artifact kind built for the sub-function name, building
// it first with build when this session has not seen it yet. Builds nest
// depth-first; a failure is returned to every caller up the chain and
// nothing is recorded for it.
func Ensure[T any](s *Session, kind, name string, build func(*ast.FunctionDefinition) (T, error)) (T, error) {
	var zero T
	if a, ok := s.built[key{kind, name}]; ok {
		t, ok := a.(T)
		if !ok {
			return zero, fmt.Errorf("session: artifact %s/%s has type %T", kind, name, a)
		}
		return t, nil
	}
	if err := s.Begin(kind, name); err != nil {
		return zero, err
	}
	defer s.End(kind, name)

	def, err := s.Lookup(name)
	if err != nil {
		return zero, err
	}
	t, err := build(def)
	if err != nil {
		return zero, fmt.Errorf("sub-function %s: %w", name, err)
	}
	s.record(kind, name, t)
	return t, nil
}

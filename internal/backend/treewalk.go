package backend

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/treewalk"
)

// TreeWalkBackend wraps the reference tree-walk interpreter
type TreeWalkBackend struct{}

// NewTreeWalk creates a new tree-walk backend
func NewTreeWalk() *TreeWalkBackend {
	return &TreeWalkBackend{}
}

// Tree is a checked definition ready for interpretation.
type Tree struct {
	Fn *treewalk.Function
}

func (t *Tree) FunctionName() string { return t.Fn.Name() }
func (t *Tree) NumIn() int           { return t.Fn.NumIn() }
func (t *Tree) NumOut() int          { return t.Fn.NumOut() }

// NewRunner returns the function itself: it keeps no state between calls.
func (t *Tree) NewRunner() (Runner, error) {
	return treeRunner{t.Fn}, nil
}

type treeRunner struct {
	fn *treewalk.Function
}

func (r treeRunner) Run(in []float64) ([]float64, error) {
	return r.fn.Call(in)
}

func (b *TreeWalkBackend) Build(sess *session.Session, def *ast.FunctionDefinition) (Artifact, error) {
	fn, err := treewalk.Prepare(sess, def)
	if err != nil {
		return nil, err
	}
	return &Tree{Fn: fn}, nil
}

// Name returns the backend name
func (b *TreeWalkBackend) Name() string {
	return config.BackendTree
}

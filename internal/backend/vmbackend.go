package backend

import (
	"fmt"
	"io"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/vm"
)

// VMBackend compiles to bytecode and executes on the stack machine.
type VMBackend struct {
	capacity int
	trace    io.Writer
}

// NewVM creates a VM backend whose machines have the given stack capacity.
// trace may be nil.
func NewVM(capacity int, trace io.Writer) *VMBackend {
	if capacity <= 0 {
		capacity = config.DefaultStackCapacity
	}
	return &VMBackend{capacity: capacity, trace: trace}
}

// Bytecode is a compiled unit graph.
type Bytecode struct {
	Unit     *vm.Unit
	capacity int
	trace    io.Writer
}

func (b *Bytecode) FunctionName() string { return b.Unit.Name }
func (b *Bytecode) NumIn() int           { return b.Unit.NumIn }
func (b *Bytecode) NumOut() int          { return b.Unit.NumOut }

func (b *Bytecode) NewRunner() (Runner, error) {
	opts := []vm.Option{vm.WithStackCapacity(b.capacity)}
	if b.trace != nil {
		opts = append(opts, vm.WithTrace(b.trace))
	}
	m, err := vm.NewMachine(b.Unit, opts...)
	if err != nil {
		return nil, err
	}
	return &vmRunner{m: m}, nil
}

type vmRunner struct {
	m *vm.Machine
}

// Run converts fatal machine conditions into errors.
func (r *vmRunner) Run(in []float64) (out []float64, err error) {
	defer vm.Recover(&err)
	out = make([]float64, r.m.Unit().NumOut)
	r.m.Call(in, out)
	return out, nil
}

func (b *VMBackend) Build(sess *session.Session, def *ast.FunctionDefinition) (Artifact, error) {
	u, err := vm.Compile(sess, def)
	if err != nil {
		return nil, err
	}
	return b.wrap(u), nil
}

func (b *VMBackend) wrap(u *vm.Unit) *Bytecode {
	return &Bytecode{Unit: u, capacity: b.capacity, trace: b.trace}
}

func (b *VMBackend) Name() string   { return config.BackendVM }
func (b *VMBackend) Format() string { return "bundle" }

func (b *VMBackend) Encode(a Artifact) ([]byte, error) {
	bc, ok := a.(*Bytecode)
	if !ok {
		return nil, fmt.Errorf("vm backend cannot encode %T", a)
	}
	return vm.NewBundle(bc.Unit).Serialize()
}

func (b *VMBackend) Decode(function string, data []byte) (Artifact, error) {
	bundle, err := vm.Deserialize(data)
	if err != nil {
		return nil, err
	}
	u, err := bundle.Unit()
	if err != nil {
		return nil, err
	}
	if u.Name != function {
		return nil, fmt.Errorf("bundle holds %s, expected %s", u.Name, function)
	}
	return b.wrap(u), nil
}

// LoadBundle reads a serialized bundle as an executable artifact.
func (b *VMBackend) LoadBundle(data []byte) (*Bytecode, error) {
	bundle, err := vm.Deserialize(data)
	if err != nil {
		return nil, err
	}
	u, err := bundle.Unit()
	if err != nil {
		return nil, err
	}
	return b.wrap(u), nil
}

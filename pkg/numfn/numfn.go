// Package numfn is the embedding API: load a function document, emit C
// source for a function or compile it to bytecode and evaluate it from Go.
//
//	prog, err := numfn.Load("physics.nf.yaml")
//	fn, err := prog.Compile("velocity")
//	w, err := fn.NewWorker()
//	vx, err := w.Eval1(0.5)
//
// A Function is immutable and may be shared; a Worker is not safe for
// concurrent use, so give each goroutine its own.
package numfn

import (
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/emitter"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/vm"
)

// Program is a loaded function document.
type Program struct {
	lib *document.Library
	cfg *config.Config
}

// Option configures a Program.
type Option func(*Program)

// WithConfig applies numfn.yaml settings: the VM stack capacity and the
// names used in emitted C.
func WithConfig(cfg *config.Config) Option {
	return func(p *Program) { p.cfg = cfg }
}

// Load parses the document at path.
func Load(path string, opts ...Option) (*Program, error) {
	lib, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return newProgram(lib, opts), nil
}

// Parse parses document source held in memory.
func Parse(src []byte, opts ...Option) (*Program, error) {
	lib, err := document.Parse(src, "<memory>")
	if err != nil {
		return nil, err
	}
	return newProgram(lib, opts), nil
}

func newProgram(lib *document.Library, opts []Option) *Program {
	p := &Program{lib: lib}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg == nil {
		p.cfg = config.Default()
	}
	return p
}

// Functions lists the function names in document order.
func (p *Program) Functions() []string {
	return p.lib.Names()
}

// Emit returns the C translation unit of function name.
func (p *Program) Emit(name string) (string, error) {
	def, err := p.lib.Lookup(name)
	if err != nil {
		return "", err
	}
	return emitter.EmitWith(session.New(p.lib), def, emitter.OptionsFrom(p.cfg))
}

// Compile compiles function name and its sub-functions to bytecode.
func (p *Program) Compile(name string) (*Function, error) {
	def, err := p.lib.Lookup(name)
	if err != nil {
		return nil, err
	}
	u, err := vm.Compile(session.New(p.lib), def)
	if err != nil {
		return nil, err
	}
	return &Function{unit: u, capacity: p.cfg.StackCapacity}, nil
}

// Function is a compiled function.
type Function struct {
	unit     *vm.Unit
	capacity int
}

// LoadBundle restores a Function serialized with MarshalBinary.
func LoadBundle(data []byte) (*Function, error) {
	b, err := vm.Deserialize(data)
	if err != nil {
		return nil, err
	}
	u, err := b.Unit()
	if err != nil {
		return nil, err
	}
	return &Function{unit: u, capacity: config.DefaultStackCapacity}, nil
}

func (f *Function) Name() string { return f.unit.Name }
func (f *Function) NumIn() int   { return f.unit.NumIn }
func (f *Function) NumOut() int  { return f.unit.NumOut }

// Disassemble lists the bytecode of f and its sub-functions.
func (f *Function) Disassemble() string {
	return vm.DisassembleAll(f.unit)
}

// MarshalBinary serializes f as a bundle.
func (f *Function) MarshalBinary() ([]byte, error) {
	return vm.NewBundle(f.unit).Serialize()
}

// NewWorker returns an evaluator for f. It fails when f needs a deeper
// operand stack than the configured capacity.
func (f *Function) NewWorker() (*Worker, error) {
	m, err := vm.NewMachine(f.unit, vm.WithStackCapacity(f.capacity))
	if err != nil {
		return nil, err
	}
	return &Worker{m: m}, nil
}

// Worker evaluates one Function.
type Worker struct {
	m *vm.Machine
}

// Call evaluates the function on in and returns its NumOut results.
func (w *Worker) Call(in []float64) (out []float64, err error) {
	defer vm.Recover(&err)
	out = make([]float64, w.m.Unit().NumOut)
	w.m.Call(in, out)
	return out, nil
}

// Eval0 evaluates a function of no inputs with a single output.
func (w *Worker) Eval0() (v float64, err error) {
	defer vm.Recover(&err)
	return w.m.Call0(), nil
}

// Eval1 evaluates a single-output function of one input.
func (w *Worker) Eval1(a float64) (v float64, err error) {
	defer vm.Recover(&err)
	return w.m.Call1(a), nil
}

func (w *Worker) Eval2(a, b float64) (v float64, err error) {
	defer vm.Recover(&err)
	return w.m.Call2(a, b), nil
}

func (w *Worker) Eval3(a, b, c float64) (v float64, err error) {
	defer vm.Recover(&err)
	return w.m.Call3(a, b, c), nil
}

// Package treewalk interprets function definitions directly from the tree.
// It applies the same operator table and the same C semantics as the
// compiled backends and serves as the reference they are checked against.
package treewalk

import (
	"errors"
	"fmt"
	"math"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/ops"
	"github.com/funvibe/numfn/internal/session"
)

var (
	ErrArity       = errors.New("argument count does not match declared arity")
	ErrReturnArity = errors.New("returned value count does not match output arity")
)

// Function is a checked definition ready for evaluation. It holds no
// evaluation state, so one Function may be called from many goroutines.
type Function struct {
	def      *ast.FunctionDefinition
	contract ast.ReturnContract
	callees  map[string]*Function
	// size is the highest slot id in use.
	size int
}

// Prepare checks def and every sub-function it reaches, resolving callees
// through sess.
func Prepare(sess *session.Session, def *ast.FunctionDefinition) (*Function, error) {
	if err := sess.Begin(session.KindTree, def.Name); err != nil {
		return nil, err
	}
	defer sess.End(session.KindTree, def.Name)
	return prepare(sess, def, def.Return)
}

func prepareSubfunction(sess *session.Session, def *ast.FunctionDefinition) (*Function, error) {
	if def.NumOut != 1 {
		return nil, diagnostics.NewError(diagnostics.ErrC002, def.Name, "sub-function",
			"sub-function must have exactly one return value (not %d)", def.NumOut)
	}
	return prepare(sess, def, ast.SingleValue{})
}

func prepare(sess *session.Session, def *ast.FunctionDefinition, contract ast.ReturnContract) (*Function, error) {
	f := &Function{def: def, contract: contract, callees: make(map[string]*Function)}
	for _, v := range def.Vars {
		f.size = max(f.size, v.Slot)
	}
	c := &checker{sess: sess, f: f}
	for _, stmt := range def.Body {
		if err := c.statement(stmt); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Function) Name() string { return f.def.Name }
func (f *Function) NumIn() int   { return f.def.NumIn() }
func (f *Function) NumOut() int  { return f.def.NumOut }

// Call evaluates f on in and returns its NumOut results.
func (f *Function) Call(in []float64) ([]float64, error) {
	if len(in) != f.NumIn() {
		return nil, fmt.Errorf("treewalk: %s: %w: %d inputs, %d declared", f.Name(), ErrArity, len(in), f.NumIn())
	}
	fr := f.frame(in)
	sig, err := fr.block(f.def.Body)
	if err != nil {
		return nil, err
	}
	if sig != sigReturn {
		if f.def.NumOut != 0 {
			return nil, fr.arityError(0)
		}
		return []float64{}, nil
	}
	return fr.out, nil
}

type signal int

const (
	sigNext signal = iota
	sigBreak
	sigReturn
)

// frame is the state of one call: parameters and locals start at zero,
// globals carry their bound value.
type frame struct {
	f     *Function
	slots []float64
	out   []float64
}

func (f *Function) frame(in []float64) *frame {
	fr := &frame{f: f, slots: make([]float64, f.size+1)}
	for _, v := range f.def.Vars {
		if v.Kind == ast.Global {
			fr.slots[v.Slot] = v.Value
		}
	}
	for i, slot := range f.def.Params {
		fr.slots[slot] = in[i]
	}
	return fr
}

func (fr *frame) arityError(got int) error {
	return fmt.Errorf("treewalk: %s: %w: returned %d values, %d declared", fr.f.Name(), ErrReturnArity, got, fr.f.def.NumOut)
}

func (fr *frame) block(stmts []ast.Node) (signal, error) {
	for _, s := range stmts {
		sig, err := fr.exec(s)
		if err != nil || sig != sigNext {
			return sig, err
		}
	}
	return sigNext, nil
}

func (fr *frame) exec(n ast.Node) (signal, error) {
	if n == nil {
		return sigNext, nil
	}
	op := n.(*ast.Operator)

	switch op.Op {
	case ast.OpSeq:
		sig, err := fr.exec(op.Child(0))
		if err != nil || sig != sigNext {
			return sig, err
		}
		return fr.exec(op.Child(1))

	case ast.OpAssign:
		v, err := fr.eval(op.Child(1))
		if err != nil {
			return sigNext, err
		}
		fr.slots[op.Child(0).(*ast.Variable).Slot] = v
		return sigNext, nil

	case ast.OpIf, ast.OpElseIf:
		cond, err := fr.eval(op.Child(0))
		if err != nil {
			return sigNext, err
		}
		if ops.Truth(cond) {
			return fr.exec(op.Child(1))
		}
		switch els := op.Child(2).(type) {
		case nil:
			return sigNext, nil
		case *ast.Operator:
			if els.Op == ast.OpElse {
				return fr.exec(els.Child(0))
			}
		}
		return fr.exec(op.Child(2))

	case ast.OpFor:
		return fr.loop(op)

	case ast.OpBreak:
		return sigBreak, nil

	case ast.OpReturn:
		values := ast.Flatten(op.Child(0), ast.OpList)
		out := make([]float64, len(values))
		for i, v := range values {
			x, err := fr.eval(v)
			if err != nil {
				return sigNext, err
			}
			out[i] = x
		}
		if len(out) != fr.f.def.NumOut {
			return sigNext, fr.arityError(len(out))
		}
		fr.out = out
		return sigReturn, nil
	}
	return sigNext, fmt.Errorf("treewalk: %s: unexpected statement %v", fr.f.Name(), n)
}

// loop runs for v = start, end, step. end and step are evaluated on every
// iteration, as the emitted C loop does.
func (fr *frame) loop(op *ast.Operator) (signal, error) {
	slot := op.Child(0).(*ast.Variable).Slot
	start, err := fr.eval(op.Child(1))
	if err != nil {
		return sigNext, err
	}
	fr.slots[slot] = start
	for {
		end, err := fr.eval(op.Child(2))
		if err != nil {
			return sigNext, err
		}
		if le, _ := ops.Eval2(ast.OpLE, fr.slots[slot], end); !ops.Truth(le) {
			return sigNext, nil
		}
		sig, err := fr.exec(op.Child(4))
		if err != nil || sig == sigReturn {
			return sig, err
		}
		if sig == sigBreak {
			return sigNext, nil
		}
		step, err := fr.eval(op.Child(3))
		if err != nil {
			return sigNext, err
		}
		fr.slots[slot], _ = ops.Eval2(ast.OpAdd, fr.slots[slot], step)
	}
}

func (fr *frame) eval(n ast.Node) (float64, error) {
	switch n := n.(type) {
	case *ast.Constant:
		return n.Value, nil
	case *ast.Variable:
		return fr.slots[n.Slot], nil
	case *ast.Operator:
		switch n.Op {
		case ast.OpPi:
			return math.Pi, nil
		case ast.OpCall:
			return fr.call(n)
		}
		if n.Op.IsUnary() {
			x, err := fr.eval(n.Child(0))
			if err != nil {
				return 0, err
			}
			v, _ := ops.Eval1(n.Op, x)
			return v, nil
		}
		a, err := fr.eval(n.Child(0))
		if err != nil {
			return 0, err
		}
		b, err := fr.eval(n.Child(1))
		if err != nil {
			return 0, err
		}
		v, _ := ops.Eval2(n.Op, a, b)
		return v, nil
	}
	return 0, fmt.Errorf("treewalk: %s: unexpected expression %v", fr.f.Name(), n)
}

func (fr *frame) call(op *ast.Operator) (float64, error) {
	callee := fr.f.callees[op.Child(0).(*ast.FuncRef).Name]
	args := ast.Flatten(op.Child(1), ast.OpList)
	in := make([]float64, len(args))
	for i, a := range args {
		v, err := fr.eval(a)
		if err != nil {
			return 0, err
		}
		in[i] = v
	}
	out, err := callee.Call(in)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

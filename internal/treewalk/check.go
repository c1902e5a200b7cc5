package treewalk

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/ops"
	"github.com/funvibe/numfn/internal/session"
)

// checker validates a body once, before any evaluation, and resolves the
// callees through the session. It reports the same diagnostics as the
// compiling backends.
type checker struct {
	sess  *session.Session
	f     *Function
	loops int
}

func (c *checker) errorf(code diagnostics.Code, construct, format string, args ...interface{}) error {
	return diagnostics.NewError(code, c.f.def.Name, construct, format, args...)
}

func (c *checker) variable(n ast.Node, construct string) (ast.Var, error) {
	v, ok := n.(*ast.Variable)
	if !ok {
		return ast.Var{}, c.errorf(diagnostics.ErrC010, construct, "expected a variable, got %v", n)
	}
	info, ok := c.f.def.Var(v.Slot)
	if !ok {
		return ast.Var{}, c.errorf(diagnostics.ErrC008, construct, "unknown variable slot %d", v.Slot)
	}
	return info, nil
}

func (c *checker) target(n ast.Node, construct string) error {
	v, err := c.variable(n, construct)
	if err != nil {
		return err
	}
	if !v.Assignable() {
		return c.errorf(diagnostics.ErrC001, construct, "global variable %s is read-only", v.Name)
	}
	return nil
}

func (c *checker) statement(n ast.Node) error {
	if n == nil {
		return nil
	}
	op, ok := n.(*ast.Operator)
	if !ok {
		return c.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
	}

	switch op.Op {
	case ast.OpSeq:
		if err := c.statement(op.Child(0)); err != nil {
			return err
		}
		return c.statement(op.Child(1))

	case ast.OpAssign:
		if err := c.target(op.Child(0), "assignment"); err != nil {
			return err
		}
		return c.expression(op.Child(1))

	case ast.OpIf, ast.OpElseIf:
		if err := c.expression(op.Child(0)); err != nil {
			return err
		}
		if err := c.statement(op.Child(1)); err != nil {
			return err
		}
		return c.branch(op.Child(2))

	case ast.OpFor:
		if err := c.target(op.Child(0), "for"); err != nil {
			return err
		}
		for i := 1; i <= 3; i++ {
			if err := c.expression(op.Child(i)); err != nil {
				return err
			}
		}
		c.loops++
		defer func() { c.loops-- }()
		return c.statement(op.Child(4))

	case ast.OpBreak:
		if c.loops == 0 {
			return c.errorf(diagnostics.ErrC006, "break", "break outside of a loop")
		}
		return nil

	case ast.OpReturn:
		return c.ret(op)

	case ast.OpCall:
		return c.errorf(diagnostics.ErrC009, "call", "result of %v is discarded", op.Child(0))
	}
	return c.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
}

func (c *checker) branch(n ast.Node) error {
	if n == nil {
		return nil
	}
	op, ok := n.(*ast.Operator)
	if !ok {
		return c.errorf(diagnostics.ErrC010, "if", "else branch is %v", n)
	}
	switch op.Op {
	case ast.OpElseIf:
		return c.statement(op)
	case ast.OpElse:
		return c.statement(op.Child(0))
	}
	return c.errorf(diagnostics.ErrC010, "if", "else branch is %v", n)
}

func (c *checker) ret(op *ast.Operator) error {
	values := ast.Flatten(op.Child(0), ast.OpList)
	switch ct := c.f.contract.(type) {
	case ast.SingleValue:
		if len(values) > 1 {
			return c.errorf(diagnostics.ErrC003, "return", "sub-functions may not return more than one value")
		}
		if len(values) == 0 {
			return c.errorf(diagnostics.ErrC003, "return", "return needs exactly one value")
		}
	case ast.NamedSlots:
		if len(values) != len(ct.Labels) {
			return c.errorf(diagnostics.ErrC003, "return",
				"%s expects %d return values, got %d", ct.Exit, len(ct.Labels), len(values))
		}
	}
	for _, v := range values {
		if err := c.expression(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) expression(n ast.Node) error {
	switch n := n.(type) {
	case *ast.Constant:
		return nil
	case *ast.Variable:
		_, err := c.variable(n, "expression")
		return err
	case *ast.Operator:
		switch n.Op {
		case ast.OpPi:
			return nil
		case ast.OpCall:
			return c.call(n)
		}
		if ops.Lookup(n.Op) == nil {
			return c.errorf(diagnostics.ErrC009, n.Op.String(), "%v is not an expression", n)
		}
		arity := 2
		if n.Op.IsUnary() {
			arity = 1
		}
		for i := 0; i < arity; i++ {
			if err := c.expression(n.Child(i)); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return c.errorf(diagnostics.ErrC010, "expression", "missing operand")
	}
	return c.errorf(diagnostics.ErrC010, "expression", "%v is not an expression", n)
}

func (c *checker) call(op *ast.Operator) error {
	ref, ok := op.Child(0).(*ast.FuncRef)
	if !ok {
		return c.errorf(diagnostics.ErrC010, "call", "callee is %v", op.Child(0))
	}
	callee, err := session.Ensure(c.sess, session.KindTree, ref.Name, func(def *ast.FunctionDefinition) (*Function, error) {
		return prepareSubfunction(c.sess, def)
	})
	if err != nil {
		return err
	}
	args := ast.Flatten(op.Child(1), ast.OpList)
	if len(args) != callee.NumIn() {
		return c.errorf(diagnostics.ErrC007, "call",
			"%s takes %d arguments, got %d", ref.Name, callee.NumIn(), len(args))
	}
	for _, a := range args {
		if err := c.expression(a); err != nil {
			return err
		}
	}
	c.f.callees[ref.Name] = callee
	return nil
}

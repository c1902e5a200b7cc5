package vm

import (
	"math"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/ops"
	"github.com/funvibe/numfn/internal/session"
)

// compileExpression leaves exactly one value on the stack.
func (c *Compiler) compileExpression(n ast.Node) error {
	switch n := n.(type) {
	case *ast.Constant:
		c.emitConstant(n.Value)
		return nil

	case *ast.Variable:
		v, err := c.resolve(n, "expression")
		if err != nil {
			return err
		}
		if v.Kind == ast.Global {
			c.emitConstant(v.Value)
			return nil
		}
		c.emitInt(OP_PUSH_VAR, c.symbols[v.Name])
		c.push(1)
		return nil

	case *ast.Operator:
		return c.compileOperator(n)

	case nil:
		return c.errorf(diagnostics.ErrC010, "expression", "missing operand")
	}
	return c.errorf(diagnostics.ErrC010, "expression", "%v is not an expression", n)
}

func (c *Compiler) compileOperator(op *ast.Operator) error {
	switch op.Op {
	case ast.OpPi:
		c.emitConstant(math.Pi)
		return nil
	case ast.OpCall:
		return c.compileCall(op)
	}

	if ops.Lookup(op.Op) == nil {
		return c.errorf(diagnostics.ErrC009, op.Op.String(), "%v is not an expression", op)
	}
	if op.Op.IsUnary() {
		if err := c.compileExpression(op.Child(0)); err != nil {
			return err
		}
		c.emitInt(OP_UNARY, int(op.Op))
		return nil
	}

	// Source order: the left operand ends up deeper in the stack.
	if err := c.compileExpression(op.Child(0)); err != nil {
		return err
	}
	if err := c.compileExpression(op.Child(1)); err != nil {
		return err
	}
	c.emitInt(OP_BINARY, int(op.Op))
	c.pop(1)
	return nil
}

func (c *Compiler) compileCall(op *ast.Operator) error {
	ref, ok := op.Child(0).(*ast.FuncRef)
	if !ok {
		return c.errorf(diagnostics.ErrC010, "call", "callee is %v", op.Child(0))
	}
	callee, err := session.Ensure(c.sess, session.KindBytecode, ref.Name, func(def *ast.FunctionDefinition) (*Unit, error) {
		return compileSubfunction(c.sess, def)
	})
	if err != nil {
		return err
	}

	args := ast.Flatten(op.Child(1), ast.OpList)
	if len(args) != callee.NumIn {
		return c.errorf(diagnostics.ErrC007, "call",
			"%s takes %d arguments, got %d", ref.Name, callee.NumIn, len(args))
	}
	for _, a := range args {
		if err := c.compileExpression(a); err != nil {
			return err
		}
	}

	idx, ok := c.calleeIndex[ref.Name]
	if !ok {
		idx = len(c.callees)
		c.callees = append(c.callees, callee)
		c.calleeIndex[ref.Name] = idx
	}
	c.emitInt(OP_CALL, idx)

	c.pop(callee.NumIn)
	c.reserve(c.depth + max(callee.MaxStack, callee.NumOut))
	c.push(callee.NumOut)
	return nil
}

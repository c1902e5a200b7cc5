package vm

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

// compileStatement compiles one statement. Statements leave the operand
// stack as they found it.
func (c *Compiler) compileStatement(n ast.Node) error {
	if n == nil {
		return nil
	}
	op, ok := n.(*ast.Operator)
	if !ok {
		return c.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
	}

	switch op.Op {
	case ast.OpSeq:
		if err := c.compileStatement(op.Child(0)); err != nil {
			return err
		}
		return c.compileStatement(op.Child(1))
	case ast.OpAssign:
		return c.compileAssign(op)
	case ast.OpIf:
		return c.compileIf(op)
	case ast.OpFor:
		return c.compileFor(op)
	case ast.OpBreak:
		return c.compileBreak()
	case ast.OpReturn:
		return c.compileReturn(op)
	case ast.OpCall:
		return c.errorf(diagnostics.ErrC009, "call", "result of %v is discarded", op.Child(0))
	}
	return c.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
}

func (c *Compiler) compileAssign(op *ast.Operator) error {
	target, err := c.resolve(op.Child(0), "assignment")
	if err != nil {
		return err
	}
	if !target.Assignable() {
		return c.errorf(diagnostics.ErrC001, "assignment", "global variable %s is read-only", target.Name)
	}
	if err := c.compileExpression(op.Child(1)); err != nil {
		return err
	}
	c.emitInt(OP_ASSIGN, c.symbols[target.Name])
	c.pop(1)
	return nil
}

// compileIf lowers an if/elseif/else chain. Every guard jumps to the next
// guard when false; every branch but the last jumps to the common end.
func (c *Compiler) compileIf(op *ast.Operator) error {
	if err := c.compileExpression(op.Child(0)); err != nil {
		return err
	}
	guard := c.emitJump(OP_JMP_IF_FALSE)
	c.pop(1)
	if err := c.compileStatement(op.Child(1)); err != nil {
		return err
	}

	var endJumps []int
	next := op.Child(2)
	if next != nil {
		endJumps = append(endJumps, c.emitJump(OP_JMP))
	}
	c.patchJump(guard)

	for next != nil {
		branch, ok := next.(*ast.Operator)
		if !ok {
			return c.errorf(diagnostics.ErrC010, "if", "else branch is %v", next)
		}
		switch branch.Op {
		case ast.OpElseIf:
			if err := c.compileExpression(branch.Child(0)); err != nil {
				return err
			}
			guard := c.emitJump(OP_JMP_IF_FALSE)
			c.pop(1)
			if err := c.compileStatement(branch.Child(1)); err != nil {
				return err
			}
			next = branch.Child(2)
			if next != nil {
				endJumps = append(endJumps, c.emitJump(OP_JMP))
			}
			c.patchJump(guard)
		case ast.OpElse:
			if err := c.compileStatement(branch.Child(0)); err != nil {
				return err
			}
			next = nil
		default:
			return c.errorf(diagnostics.ErrC010, "if", "else branch is %v", next)
		}
	}

	for _, j := range endJumps {
		c.patchJump(j)
	}
	return nil
}

// compileReturn pushes the returned values and halts the frame. The values
// are checked against the active return contract.
func (c *Compiler) compileReturn(op *ast.Operator) error {
	values := ast.Flatten(op.Child(0), ast.OpList)

	switch ct := c.contract.(type) {
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
	case ast.Generic:
	default:
		return c.errorf(diagnostics.ErrC010, "return", "unknown return contract %v", c.contract)
	}

	for _, v := range values {
		if err := c.compileExpression(v); err != nil {
			return err
		}
	}
	c.emit(OP_RETURN)
	c.pop(len(values))
	return nil
}

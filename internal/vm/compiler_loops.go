package vm

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

// compileFor lowers `for v = start, end, step do body end`:
//
//	start; ASSIGN v
//	top:  PUSH_VAR v; end; LE; JMP_IF_FALSE exit
//	      body
//	      PUSH_VAR v; step; +; ASSIGN v
//	      JMP top
//	exit:
//
// end and step are evaluated on every iteration, as in the emitted C loop.
func (c *Compiler) compileFor(op *ast.Operator) error {
	v, err := c.resolve(op.Child(0), "for")
	if err != nil {
		return err
	}
	if !v.Assignable() {
		return c.errorf(diagnostics.ErrC001, "for", "global variable %s is read-only", v.Name)
	}
	slot := c.symbols[v.Name]

	if err := c.compileExpression(op.Child(1)); err != nil {
		return err
	}
	c.emitInt(OP_ASSIGN, slot)
	c.pop(1)

	loopStart := c.chunk.Len()
	c.emitInt(OP_PUSH_VAR, slot)
	c.push(1)
	if err := c.compileExpression(op.Child(2)); err != nil {
		return err
	}
	c.emitInt(OP_BINARY, int(ast.OpLE))
	c.pop(1)
	exitJump := c.emitJump(OP_JMP_IF_FALSE)
	c.pop(1)

	c.loopStack = append(c.loopStack, LoopContext{})
	if err := c.compileStatement(op.Child(4)); err != nil {
		return err
	}

	c.emitInt(OP_PUSH_VAR, slot)
	c.push(1)
	if err := c.compileExpression(op.Child(3)); err != nil {
		return err
	}
	c.emitInt(OP_BINARY, int(ast.OpAdd))
	c.pop(1)
	c.emitInt(OP_ASSIGN, slot)
	c.pop(1)
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	loopCtx := c.loopStack[len(c.loopStack)-1]
	for _, j := range loopCtx.breakJumps {
		c.patchJump(j)
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
	return nil
}

func (c *Compiler) compileBreak() error {
	if len(c.loopStack) == 0 {
		return c.errorf(diagnostics.ErrC006, "break", "break outside of a loop")
	}
	loopCtx := &c.loopStack[len(c.loopStack)-1]
	loopCtx.breakJumps = append(loopCtx.breakJumps, c.emitJump(OP_JMP))
	return nil
}
